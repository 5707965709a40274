// Package api is the receiver's operator surface: session management,
// per-session statistics and controls over HTTP, plus a websocket
// preview stream of the pipeline-adjusted frames.
package api

import (
	"net"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/kataras/golog"

	"CamLink/modules/protocol"
	"CamLink/server/handler/session"
	"CamLink/utils"
)

var logger = golog.Child("[api]")

type Server struct {
	manager *session.Manager
	engine  *gin.Engine
}

func New(manager *session.Manager) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{manager: manager, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/api")
	api.GET("/addresses", s.listAddresses)
	api.GET("/sessions", s.listSessions)
	api.POST("/sessions", s.addSession)
	api.DELETE("/sessions/:id", s.removeSession)
	api.PUT("/sessions/:id/select", s.selectSession)
	api.PUT("/sessions/:id/adjustments", s.setAdjustments)
	api.POST("/sessions/:id/controls", s.sendControl)
	api.POST("/sessions/:id/controls/reset", s.resetControls)
	api.GET("/sessions/:id/preview", s.preview)
}

// Run serves the API until the listener fails.
func (s *Server) Run(addr string) error {
	logger.Infof("operator API on %s", addr)
	return s.engine.Run(addr)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func respond(c *gin.Context, code int, obj any) {
	data, err := utils.JSON.Marshal(obj)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(code, "application/json; charset=utf-8", data)
}

func fail(c *gin.Context, code int, msg string) {
	respond(c, code, gin.H{"msg": msg})
}

type sessionView struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Host        string                `json:"host"`
	Port        int                   `json:"port"`
	State       string                `json:"state"`
	Active      bool                  `json:"active"`
	Stats       session.StatsSnapshot `json:"stats"`
	Adjustments session.Adjustments   `json:"adjustments"`
}

func (s *Server) view(sess *session.Session) sessionView {
	return sessionView{
		ID:          sess.ID,
		Name:        sess.Name,
		Host:        sess.Host,
		Port:        sess.Port,
		State:       sess.State().String(),
		Active:      s.manager.ActiveID() == sess.ID,
		Stats:       sess.Stats(),
		Adjustments: sess.Adjustments(),
	}
}

func (s *Server) listSessions(c *gin.Context) {
	sessions := s.manager.List()
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, s.view(sess))
	}
	respond(c, http.StatusOK, gin.H{"sessions": views, "active": s.manager.ActiveID()})
}

func (s *Server) addSession(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
		Host string `json:"host"`
		Port int    `json:"port"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.Host == "" {
		req.Host = "0.0.0.0"
	}
	sess, err := s.manager.Add(req.Name, req.Host, req.Port)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	respond(c, http.StatusCreated, s.view(sess))
}

func (s *Server) removeSession(c *gin.Context) {
	if err := s.manager.Remove(c.Param("id")); err != nil {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) selectSession(c *gin.Context) {
	if err := s.manager.SelectActive(c.Param("id")); err != nil {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) setAdjustments(c *gin.Context) {
	sess, ok := s.manager.Get(c.Param("id"))
	if !ok {
		fail(c, http.StatusNotFound, "unknown session")
		return
	}
	adjust := sess.Adjustments()
	if err := c.ShouldBindJSON(&adjust); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := sess.SetAdjustments(adjust); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	respond(c, http.StatusOK, s.view(sess))
}

func (s *Server) sendControl(c *gin.Context) {
	sess, ok := s.manager.Get(c.Param("id"))
	if !ok {
		fail(c, http.StatusNotFound, "unknown session")
		return
	}
	var req struct {
		Type  string  `json:"type"`
		Value float64 `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	var cmd protocol.Command
	switch protocol.CommandKind(req.Type) {
	case protocol.CmdZoom:
		cmd = protocol.Command{Kind: protocol.CmdZoom, Zoom: protocol.ClampFloat(req.Value, protocol.ZoomMin, protocol.ZoomMax)}
	case protocol.CmdExposure:
		cmd = protocol.Command{Kind: protocol.CmdExposure, Exposure: protocol.ClampInt(int(req.Value), protocol.ExposureMin, protocol.ExposureMax)}
	case protocol.CmdFocus:
		cmd = protocol.Command{Kind: protocol.CmdFocus, Focus: protocol.ClampFloat(req.Value, protocol.FocusMin, protocol.FocusMax)}
	default:
		fail(c, http.StatusBadRequest, "unknown control type")
		return
	}
	if err := sess.SendControl(cmd); err != nil {
		fail(c, http.StatusConflict, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) resetControls(c *gin.Context) {
	sess, ok := s.manager.Get(c.Param("id"))
	if !ok {
		fail(c, http.StatusNotFound, "unknown session")
		return
	}
	if err := sess.ResetControls(); err != nil {
		fail(c, http.StatusConflict, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

// listAddresses reports the machine's non-loopback IPv4 addresses so the
// operator can tell the sender where to connect.
func (s *Server) listAddresses(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{"addresses": localAddresses()})
}

func localAddresses() []string {
	var ips []string
	ifaces, err := net.InterfaceAddrs()
	if err != nil {
		return []string{"127.0.0.1"}
	}
	for _, addr := range ifaces {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			ips = append(ips, v4.String())
		}
	}
	if len(ips) == 0 {
		return []string{"127.0.0.1"}
	}
	sort.Strings(ips)
	return ips
}
