package capture

import (
	"errors"
	"image"
	"sync/atomic"
	"time"

	"github.com/kataras/golog"
)

var logger = golog.Child("[capture]")

// Plane is one component plane of a raw frame. PixelStride is the
// distance in bytes between two samples of the same component on a row;
// a stride of 2 means the plane is a strided view over an interleaved
// chroma buffer.
type Plane struct {
	Data        []byte
	PixelStride int
	RowStride   int
}

// RawFrame is one capture buffer: a luma plane plus two chroma planes.
// Frames come out of a small fixed pool on the device side, so every
// frame must be closed exactly once when processing ends, whether or not
// the pixels were used. The pixel data is immutable while the frame is
// open.
type RawFrame struct {
	Y, Cb, Cr Plane
	Width     int
	Height    int
	Timestamp time.Time

	released atomic.Bool
	release  func()
}

// NewRawFrame wraps capture planes with a release hook returning the
// buffer to its owner. release may be nil for frames that do not come
// from a bounded pool (tests, synthetic sources).
func NewRawFrame(y, cb, cr Plane, width, height int, ts time.Time, release func()) *RawFrame {
	return &RawFrame{Y: y, Cb: cb, Cr: cr, Width: width, Height: height, Timestamp: ts, release: release}
}

// Close releases the underlying capture buffer. Safe to call from
// multiple paths; only the first call releases.
func (f *RawFrame) Close() {
	if f == nil || f.released.Swap(true) {
		return
	}
	if f.release != nil {
		f.release()
	}
}

// Released reports whether Close has run, for tests and drop accounting.
func (f *RawFrame) Released() bool {
	return f != nil && f.released.Load()
}

// Characteristics is what the device advertises about itself. Control
// state maps protocol values onto these on every settings update.
type Characteristics struct {
	ActiveArray      image.Rectangle
	MaxDigitalZoom   float64
	ExposureRangeMin int
	ExposureRangeMax int
	// MinFocusDistance is in diopters; zero means fixed-focus and
	// manual focus is not applicable.
	MinFocusDistance float64
}

// FocusMode selects between the device's own continuous autofocus and an
// explicit lens distance.
type FocusMode int

const (
	FocusAuto FocusMode = iota
	FocusManual
)

// Request carries the device-specific capture parameters derived from
// the control state. A zero CropRegion means the full active array.
type Request struct {
	CropRegion           image.Rectangle
	ExposureCompensation int
	FocusMode            FocusMode
	// FocusDistance is in diopters, only meaningful with FocusManual.
	FocusDistance float64
}

// Config requests a capture resolution and delivery rate from a device.
type Config struct {
	Width  int
	Height int
	FPS    int
}

// FrameSink receives frames on the device's delivery goroutine. The sink
// owns the frame and must Close it.
type FrameSink func(*RawFrame)

// Device abstracts the capture collaborator: it yields RawFrames at a
// requested resolution and reports its characteristics.
type Device interface {
	Name() string
	Characteristics() Characteristics
	// Start opens the device and begins delivering frames to sink.
	// The returned session owns every resource the capture holds.
	Start(cfg Config, sink FrameSink) (*Session, error)
	// Apply pushes updated capture parameters. Idempotent and
	// order-independent; applying the same request twice is a no-op at
	// the device.
	Apply(req Request) error
}

var ErrDeviceClosed = errors.New("capture: device closed")

// Stage is one step of a capture teardown.
type Stage struct {
	Name  string
	Close func() error
}

// Session holds the resources of one open capture. Release order is
// fixed: capture session, device, buffer reader, preview surface. A
// failure in one stage never prevents the next.
type Session struct {
	stages []Stage
	closed atomic.Bool
}

func NewSession(stages ...Stage) *Session {
	return &Session{stages: stages}
}

// Close runs every stage in order. Idempotent: concurrent and repeated
// calls after the first are no-ops.
func (s *Session) Close() {
	if s == nil || s.closed.Swap(true) {
		return
	}
	for _, stage := range s.stages {
		if stage.Close == nil {
			continue
		}
		if err := stage.Close(); err != nil {
			logger.Warnf("capture teardown stage %s failed: %v", stage.Name, err)
		}
	}
}

// Closed reports whether teardown has run.
func (s *Session) Closed() bool {
	return s != nil && s.closed.Load()
}
