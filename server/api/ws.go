package api

import (
	"bytes"
	"image"
	"image/jpeg"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	xdraw "golang.org/x/image/draw"
)

const (
	previewInterval = 33 * time.Millisecond
	previewMaxWidth = 960
	previewQuality  = 75
	writeDeadline   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 256 * 1024,
	// The preview is served to the local operator UI.
	CheckOrigin: func(*http.Request) bool { return true },
}

// preview streams the latest adjusted frame of one session as binary
// JPEG websocket messages. Frames are polled, not queued: a slow client
// just sees fewer frames.
func (s *Server) preview(c *gin.Context) {
	sess, ok := s.manager.Get(c.Param("id"))
	if !ok {
		fail(c, http.StatusNotFound, "unknown session")
		return
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debugf("preview upgrade failed: %v", err)
		return
	}
	defer ws.Close()
	logger.Infof("preview attached to session %s", sess.Name)

	// Discard inbound messages so pings and close frames are handled;
	// a read error means the client is gone and the loop below must not
	// outlive it.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(previewInterval)
	defer ticker.Stop()
	var lastSent *image.RGBA
	for {
		select {
		case <-gone:
			logger.Debugf("preview client left session %s", sess.Name)
			return
		case <-ticker.C:
		}
		frame := sess.LastFrame()
		if frame == nil || frame == lastSent {
			continue
		}
		payload, err := encodePreview(frame)
		if err != nil {
			logger.Debugf("preview encode failed: %v", err)
			continue
		}
		_ = ws.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			logger.Debugf("preview detached from session %s: %v", sess.Name, err)
			return
		}
		lastSent = frame
	}
}

// encodePreview downscales wide frames before re-encoding so the
// operator UI is not fed full-resolution JPEGs.
func encodePreview(frame *image.RGBA) ([]byte, error) {
	out := frame
	if w := frame.Rect.Dx(); w > previewMaxWidth {
		scale := float64(previewMaxWidth) / float64(w)
		h := int(float64(frame.Rect.Dy()) * scale)
		scaled := image.NewRGBA(image.Rect(0, 0, previewMaxWidth, h))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Rect, frame, frame.Rect, xdraw.Src, nil)
		out = scaled
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: previewQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
