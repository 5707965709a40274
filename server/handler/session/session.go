// Package session manages the receiver side: one listener per camera
// endpoint, frame decode, the per-session image pipeline, and the
// reverse control channel back to the sender.
package session

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kataras/golog"

	"CamLink/modules/protocol"
)

var logger = golog.Child("[session]")

// acceptPause keeps a failing accept loop from spinning.
const acceptPause = time.Second

// receiveBufferSize sizes the accepted socket for inbound JPEG frames.
const receiveBufferSize = 512 * 1024

// ConnState is the lifecycle of one camera session's endpoint.
type ConnState int32

const (
	ConnIdle ConnState = iota
	ConnListening
	ConnConnected
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnIdle:
		return "idle"
	case ConnListening:
		return "listening"
	case ConnConnected:
		return "connected"
	case ConnClosed:
		return "closed"
	}
	return "unknown"
}

var ErrNotConnected = errors.New("session: no client connected")

// Session is one logical camera endpoint. Its accept-and-read loop runs
// on a dedicated goroutine so a stall on one camera cannot block
// another. A new inbound connection supersedes the current one.
type Session struct {
	ID   string
	Name string
	Host string
	Port int

	state atomic.Int32
	stats *Stats

	adjMu  sync.RWMutex
	adjust Adjustments

	connMu sync.Mutex
	active net.Conn

	frameMu   sync.RWMutex
	lastFrame *image.RGBA

	onFrame atomic.Pointer[func(*image.RGBA)]

	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool

	listenMu sync.Mutex
	listener net.Listener
}

func newSession(id, name, host string, port int) *Session {
	return &Session{
		ID:     id,
		Name:   name,
		Host:   host,
		Port:   port,
		stats:  newStats(),
		adjust: DefaultAdjustments(),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// State returns the current connection state.
func (s *Session) State() ConnState {
	return ConnState(s.state.Load())
}

// Stats returns this session's rolling statistics.
func (s *Session) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}

// Adjustments returns the current pipeline parameters.
func (s *Session) Adjustments() Adjustments {
	s.adjMu.RLock()
	defer s.adjMu.RUnlock()
	return s.adjust
}

// SetAdjustments replaces the pipeline parameters for subsequent frames.
func (s *Session) SetAdjustments(a Adjustments) error {
	if !ValidFilter(a.Filter) {
		return fmt.Errorf("session: unknown filter %q", a.Filter)
	}
	s.adjMu.Lock()
	s.adjust = a
	s.adjMu.Unlock()
	return nil
}

// OnFrameDecoded registers a callback invoked on the session's reader
// goroutine with each pipeline-adjusted frame. The callback must not
// mutate the image.
func (s *Session) OnFrameDecoded(cb func(*image.RGBA)) {
	if cb == nil {
		s.onFrame.Store(nil)
		return
	}
	s.onFrame.Store(&cb)
}

// LastFrame returns the most recent adjusted frame, or nil.
func (s *Session) LastFrame() *image.RGBA {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return s.lastFrame
}

// SendControl writes one control command to the connected sender.
func (s *Session) SendControl(cmd protocol.Command) error {
	line := cmd.Format()
	if line == "" {
		return fmt.Errorf("session: unknown command kind %q", cmd.Kind)
	}
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.active == nil {
		return ErrNotConnected
	}
	if _, err := s.active.Write([]byte(line)); err != nil {
		return fmt.Errorf("session: control write: %w", err)
	}
	return nil
}

// ResetControls sends the default zoom, exposure and focus.
func (s *Session) ResetControls() error {
	commands := []protocol.Command{
		{Kind: protocol.CmdZoom, Zoom: protocol.ZoomDefault},
		{Kind: protocol.CmdExposure, Exposure: protocol.ExposureDefault},
		{Kind: protocol.CmdFocus, Focus: protocol.FocusDefault},
	}
	for _, cmd := range commands {
		if err := s.SendControl(cmd); err != nil {
			return err
		}
	}
	return nil
}

// start binds the listener and launches the accept loop.
func (s *Session) start() error {
	addr := net.JoinHostPort(s.Host, fmt.Sprintf("%d", s.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("session: listen %s: %w", addr, err)
	}
	s.listenMu.Lock()
	s.listener = listener
	s.listenMu.Unlock()
	s.state.Store(int32(ConnListening))
	go s.acceptLoop(listener)
	logger.Infof("session %s listening on %s", s.Name, addr)
	return nil
}

func (s *Session) acceptLoop(listener net.Listener) {
	defer close(s.done)
	var handlers sync.WaitGroup
	defer handlers.Wait()
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			logger.Warnf("session %s accept: %v", s.Name, err)
			time.Sleep(acceptPause)
			continue
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
			_ = tcp.SetReadBuffer(receiveBufferSize)
		}
		// A fresh client supersedes a stale one: closing the old
		// socket unblocks its reader, which then exits.
		s.connMu.Lock()
		if s.active != nil {
			logger.Infof("session %s superseding stale connection", s.Name)
			_ = s.active.Close()
		}
		s.active = conn
		s.connMu.Unlock()
		s.state.Store(int32(ConnConnected))
		logger.Infof("session %s client connected from %s", s.Name, conn.RemoteAddr())
		handlers.Add(1)
		go func(c net.Conn) {
			defer handlers.Done()
			s.readFrames(c)
		}(conn)
	}
}

// readFrames consumes length-prefixed frames until the socket errors or
// is superseded. Errors here close only this session's connection.
func (s *Session) readFrames(conn net.Conn) {
	defer func() {
		_ = conn.Close()
		s.connMu.Lock()
		if s.active == conn {
			s.active = nil
			if !s.closed.Load() {
				s.state.Store(int32(ConnListening))
			}
		}
		s.connMu.Unlock()
	}()
	for {
		payload, err := protocol.ReadFrame(conn)
		if err != nil {
			select {
			case <-s.quit:
			default:
				logger.Debugf("session %s read ended: %v", s.Name, err)
			}
			return
		}
		if len(payload) == 0 {
			continue
		}
		s.handleFrame(payload, time.Now())
	}
}

// handleFrame decodes one JPEG payload and runs the adjustment pipeline.
// A frame that fails to decode is dropped; the stream continues.
func (s *Session) handleFrame(payload []byte, arrival time.Time) {
	img, err := jpeg.Decode(bytes.NewReader(payload))
	if err != nil {
		logger.Debugf("session %s dropping undecodable frame (%d bytes): %v", s.Name, len(payload), err)
		return
	}
	rgba := toRGBA(img)
	adjusted := s.Adjustments().Apply(rgba)
	s.frameMu.Lock()
	s.lastFrame = adjusted
	s.frameMu.Unlock()
	s.stats.recordFrame(arrival, len(payload), time.Since(arrival))
	if cb := s.onFrame.Load(); cb != nil {
		(*cb)(adjusted)
	}
}

// close tears this session down without touching any other session.
func (s *Session) close() {
	if s.closed.Swap(true) {
		return
	}
	s.state.Store(int32(ConnClosed))
	close(s.quit)
	s.listenMu.Lock()
	listener := s.listener
	s.listenMu.Unlock()
	if listener != nil {
		_ = listener.Close()
	}
	s.connMu.Lock()
	if s.active != nil {
		_ = s.active.Close()
		s.active = nil
	}
	s.connMu.Unlock()
	<-s.done
	logger.Infof("session %s closed", s.Name)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Rect, img, img.Bounds().Min, draw.Src)
	return out
}
