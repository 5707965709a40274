// Package stream drives the capture-to-network path: frames arrive on
// the device's delivery worker, pass the rate throttle, get encoded and
// written by short-lived send tasks, while a background listener feeds
// inbound control lines back into the capture state.
package stream

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kataras/golog"

	"CamLink/client/service/capture"
	"CamLink/client/service/stream/codec"
	"CamLink/client/service/control"
	"CamLink/modules/protocol"
)

var logger = golog.Child("[stream]")

// controlPollSleep is how long the control listener sleeps when the
// socket has no complete line yet.
const controlPollSleep = 20 * time.Millisecond

type Config struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
	Capture        capture.Config
	JPEGQuality    int
	MinInterval    time.Duration
}

// Streamer owns one live stream: the connection, the capture session,
// the throttle and codec, and the control listener.
type Streamer struct {
	cfg      Config
	dev      capture.Device
	codec    *codec.Codec
	throttle *Throttle
	ctrl     *control.State

	state     atomic.Int32
	streaming atomic.Bool
	quit      chan struct{}
	sends     sync.WaitGroup
	listener  sync.WaitGroup

	mu      sync.Mutex
	conn    *Conn
	session *capture.Session

	metrics *Metrics

	// OnError is invoked once with the error that aborted the stream.
	OnError func(error)
}

func New(cfg Config, dev capture.Device) *Streamer {
	return &Streamer{
		cfg:      cfg,
		dev:      dev,
		codec:    codec.New(cfg.JPEGQuality),
		throttle: NewThrottle(cfg.MinInterval),
		ctrl:     control.NewState(),
		metrics:  newMetrics(),
	}
}

// Control exposes the capture control state, for tests and status views.
func (s *Streamer) Control() *control.State {
	return s.ctrl
}

// State returns the current lifecycle state.
func (s *Streamer) State() State {
	return State(s.state.Load())
}

func (s *Streamer) transition(to State) bool {
	for {
		from := State(s.state.Load())
		if !canTransition(from, to) {
			return false
		}
		if s.state.CompareAndSwap(int32(from), int32(to)) {
			return true
		}
	}
}

// Start connects to the receiver and opens the capture device. On any
// failure everything acquired so far is torn down before returning.
func (s *Streamer) Start() error {
	if !s.transition(StateOpening) {
		return fmt.Errorf("stream: cannot start from state %s", s.State())
	}
	conn, err := Dial(s.cfg.Host, s.cfg.Port, s.cfg.ConnectTimeout)
	if err != nil {
		s.state.Store(int32(StateIdle))
		return err
	}
	session, err := s.dev.Start(s.cfg.Capture, s.onFrame)
	if err != nil {
		_ = conn.Close()
		s.state.Store(int32(StateIdle))
		return fmt.Errorf("stream: open capture: %w", err)
	}
	quit := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.session = session
	s.quit = quit
	s.mu.Unlock()

	// A concurrent Stop that ran while the capture was opening found
	// nothing to tear down and already drove the state back to idle; in
	// that case everything acquired here must be released here.
	if !s.transition(StatePreviewing) {
		s.streaming.Store(false)
		_ = conn.Close()
		session.Close()
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		if s.session == session {
			s.session = nil
		}
		s.mu.Unlock()
		return fmt.Errorf("stream: stopped while opening")
	}

	if err := s.dev.Apply(s.ctrl.BuildRequest(s.dev.Characteristics())); err != nil {
		logger.Warnf("initial control apply failed: %v", err)
	}

	s.streaming.Store(true)
	s.listener.Add(1)
	go s.controlLoop(conn, quit)
	logger.Infof("streaming to %s:%d as %s", s.cfg.Host, s.cfg.Port, s.dev.Name())
	return nil
}

// onFrame runs on the capture delivery worker. Rejected frames are
// closed immediately; their buffers are scarce.
func (s *Streamer) onFrame(frame *capture.RawFrame) {
	if !s.streaming.Load() {
		frame.Close()
		return
	}
	if !s.throttle.Accept(time.Now()) {
		frame.Close()
		s.metrics.recordThrottled()
		return
	}
	s.sends.Add(1)
	go func() {
		defer s.sends.Done()
		payload, err := s.codec.Encode(frame)
		if err != nil {
			// One bad frame is dropped; streaming continues.
			s.metrics.recordEncodeDrop(err)
			if !errors.Is(err, codec.ErrPoolExhausted) {
				logger.Debugf("frame encode dropped: %v", err)
			}
			return
		}
		if !s.streaming.Load() {
			return
		}
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}
		if err := conn.SendFrame(payload); err != nil {
			s.fail(fmt.Errorf("stream: frame write: %w", err))
			return
		}
		s.metrics.recordFrame(len(payload))
	}()
}

// controlLoop polls for inbound control lines and applies them to the
// device. A malformed line is ignored; a socket error aborts the stream.
func (s *Streamer) controlLoop(conn *Conn, quit chan struct{}) {
	defer s.listener.Done()
	ch := s.dev.Characteristics()
	for {
		select {
		case <-quit:
			return
		default:
		}
		line, ok, err := conn.ReadControlLine()
		if err != nil {
			select {
			case <-quit:
			default:
				s.fail(fmt.Errorf("stream: control read: %w", err))
			}
			return
		}
		if !ok {
			time.Sleep(controlPollSleep)
			continue
		}
		cmd, valid := protocol.ParseCommand(line)
		if !valid {
			s.metrics.recordBadCommand()
			logger.Debugf("ignoring malformed control line %q", line)
			continue
		}
		s.ctrl.Handle(cmd)
		if err := s.dev.Apply(s.ctrl.BuildRequest(ch)); err != nil {
			logger.Warnf("control apply failed: %v", err)
		}
	}
}

// fail aborts the stream once; concurrent failures after the first are
// absorbed by Stop's idempotency.
func (s *Streamer) fail(err error) {
	logger.Warnf("stream aborted: %v", err)
	s.metrics.recordError(err)
	cb := s.OnError
	go func() {
		s.Stop()
		if cb != nil {
			cb(err)
		}
	}()
}

// Stop tears the stream down: stop accepting frames, cancel the control
// listener, close the socket, then release capture resources. Safe to
// call from any trigger concurrently; only the first caller proceeds.
func (s *Streamer) Stop() {
	if !s.transition(StateStopping) {
		return
	}
	s.streaming.Store(false)

	s.mu.Lock()
	quit := s.quit
	conn := s.conn
	session := s.session
	s.conn = nil
	s.session = nil
	s.mu.Unlock()

	if quit != nil {
		close(quit)
	}
	s.listener.Wait()
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Debugf("socket close: %v", err)
		}
	}
	s.sends.Wait()
	if session != nil {
		session.Close()
	}
	s.state.Store(int32(StateIdle))
	logger.Infof("stream stopped")
}

// Metrics returns the live counters for this stream.
func (s *Streamer) Metrics() *Metrics {
	return s.metrics
}

// Metrics counts per-interval stream activity, reset on snapshot.
type Metrics struct {
	sync.Mutex
	frames        uint64
	bytes         uint64
	throttled     uint64
	encodeDrops   uint64
	badCommands   uint64
	lastError     string
	intervalStart time.Time
}

type MetricsSnapshot struct {
	Frames      uint64        `json:"frames"`
	Bytes       uint64        `json:"bytes"`
	Throttled   uint64        `json:"throttled"`
	EncodeDrops uint64        `json:"encodeDrops"`
	BadCommands uint64        `json:"badCommands"`
	LastError   string        `json:"lastError,omitempty"`
	Interval    time.Duration `json:"-"`
}

func newMetrics() *Metrics {
	return &Metrics{intervalStart: time.Now()}
}

func (m *Metrics) recordFrame(size int) {
	m.Lock()
	m.frames++
	m.bytes += uint64(size)
	m.Unlock()
}

func (m *Metrics) recordThrottled() {
	m.Lock()
	m.throttled++
	m.Unlock()
}

func (m *Metrics) recordEncodeDrop(err error) {
	m.Lock()
	m.encodeDrops++
	if err != nil {
		m.lastError = err.Error()
	}
	m.Unlock()
}

func (m *Metrics) recordBadCommand() {
	m.Lock()
	m.badCommands++
	m.Unlock()
}

func (m *Metrics) recordError(err error) {
	if err == nil {
		return
	}
	m.Lock()
	m.lastError = err.Error()
	m.Unlock()
}

// Snapshot returns and resets the interval counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.Lock()
	defer m.Unlock()
	shot := MetricsSnapshot{
		Frames:      m.frames,
		Bytes:       m.bytes,
		Throttled:   m.throttled,
		EncodeDrops: m.encodeDrops,
		BadCommands: m.badCommands,
		LastError:   m.lastError,
		Interval:    time.Since(m.intervalStart),
	}
	m.frames = 0
	m.bytes = 0
	m.throttled = 0
	m.encodeDrops = 0
	m.badCommands = 0
	m.lastError = ""
	m.intervalStart = time.Now()
	return shot
}
