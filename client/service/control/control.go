// Package control keeps the capture-side view of the operator's camera
// controls and maps them onto device-specific capture parameters.
package control

import (
	"image"
	"sync"

	"CamLink/client/service/capture"
	"CamLink/modules/protocol"
)

// State holds the current zoom/exposure/focus. Last write wins; no
// history is kept. Values are already clamped to their protocol domain
// by the command parser, and clamped again to the device's advertised
// limits when a request is built.
type State struct {
	mu       sync.Mutex
	zoom     float64
	exposure int
	focus    float64
}

func NewState() *State {
	return &State{
		zoom:     protocol.ZoomDefault,
		exposure: protocol.ExposureDefault,
		focus:    protocol.FocusDefault,
	}
}

// Handle applies one parsed control command.
func (s *State) Handle(cmd protocol.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch cmd.Kind {
	case protocol.CmdZoom:
		s.zoom = cmd.Zoom
	case protocol.CmdExposure:
		s.exposure = cmd.Exposure
	case protocol.CmdFocus:
		s.focus = cmd.Focus
	}
}

// Snapshot returns the current values, for stats and tests.
func (s *State) Snapshot() (zoom float64, exposure int, focus float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom, s.exposure, s.focus
}

// BuildRequest maps the state onto capture parameters for the given
// device. Idempotent and order-independent: the same state always
// produces the same request.
func (s *State) BuildRequest(ch capture.Characteristics) capture.Request {
	s.mu.Lock()
	zoom, exposure, focus := s.zoom, s.exposure, s.focus
	s.mu.Unlock()

	req := capture.Request{}

	maxZoom := ch.MaxDigitalZoom
	if maxZoom < 1.0 {
		maxZoom = 1.0
	}
	ratio := protocol.ClampFloat(zoom, 1.0, maxZoom)
	if ratio > 1.0 {
		req.CropRegion = centeredCrop(ch.ActiveArray, ratio)
	}

	// Device range may be narrower than the protocol's nominal bounds.
	req.ExposureCompensation = protocol.ClampInt(exposure, ch.ExposureRangeMin, ch.ExposureRangeMax)

	if ch.MinFocusDistance > 0 {
		req.FocusMode = capture.FocusManual
		// focus=0 is infinity, focus=1 the closest supported distance.
		req.FocusDistance = focus * ch.MinFocusDistance
	}
	return req
}

// centeredCrop selects the sub-rectangle of the active sensor array that
// simulates the requested digital zoom.
func centeredCrop(sensor image.Rectangle, ratio float64) image.Rectangle {
	w := int(float64(sensor.Dx()) / ratio)
	h := int(float64(sensor.Dy()) / ratio)
	x := sensor.Min.X + (sensor.Dx()-w)/2
	y := sensor.Min.Y + (sensor.Dy()-h)/2
	return image.Rect(x, y, x+w, y+h)
}
