package control

import (
	"image"
	"testing"

	"CamLink/client/service/capture"
	"CamLink/modules/protocol"
)

var testChars = capture.Characteristics{
	ActiveArray:      image.Rect(0, 0, 4000, 3000),
	MaxDigitalZoom:   8.0,
	ExposureRangeMin: -6,
	ExposureRangeMax: 6,
	MinFocusDistance: 10.0,
}

func TestDefaults(t *testing.T) {
	s := NewState()
	zoom, exposure, focus := s.Snapshot()
	if zoom != 1.0 || exposure != 0 || focus != 0.5 {
		t.Fatalf("defaults = %v/%v/%v", zoom, exposure, focus)
	}
	req := s.BuildRequest(testChars)
	if !req.CropRegion.Empty() {
		t.Fatalf("zoom 1.0 must not crop, got %v", req.CropRegion)
	}
	if req.ExposureCompensation != 0 {
		t.Fatalf("default exposure = %d", req.ExposureCompensation)
	}
}

func TestHandleLastWriteWins(t *testing.T) {
	s := NewState()
	s.Handle(protocol.Command{Kind: protocol.CmdZoom, Zoom: 2.0})
	s.Handle(protocol.Command{Kind: protocol.CmdZoom, Zoom: 4.0})
	s.Handle(protocol.Command{Kind: protocol.CmdExposure, Exposure: 3})
	s.Handle(protocol.Command{Kind: protocol.CmdFocus, Focus: 0.25})
	zoom, exposure, focus := s.Snapshot()
	if zoom != 4.0 || exposure != 3 || focus != 0.25 {
		t.Fatalf("state = %v/%v/%v", zoom, exposure, focus)
	}
}

func TestCenteredCrop(t *testing.T) {
	s := NewState()
	s.Handle(protocol.Command{Kind: protocol.CmdZoom, Zoom: 2.0})
	req := s.BuildRequest(testChars)
	want := image.Rect(1000, 750, 3000, 2250)
	if req.CropRegion != want {
		t.Fatalf("crop = %v, want %v", req.CropRegion, want)
	}
}

// The protocol admits zoom up to 10x but this device only does 8x; the
// crop must be computed against the device limit.
func TestZoomClampedToDevice(t *testing.T) {
	s := NewState()
	s.Handle(protocol.Command{Kind: protocol.CmdZoom, Zoom: 10.0})
	req := s.BuildRequest(testChars)
	want := image.Rect(1750, 1312, 2250, 1687)
	if req.CropRegion != want {
		t.Fatalf("crop = %v, want %v", req.CropRegion, want)
	}
}

// EXPOSURE:20 is clamped to +12 at the parser and then to the device's
// [-6,6] range when the request is built.
func TestExposureClampedToDeviceRange(t *testing.T) {
	s := NewState()
	cmd, ok := protocol.ParseCommand("EXPOSURE:20")
	if !ok {
		t.Fatalf("parse failed")
	}
	s.Handle(cmd)
	req := s.BuildRequest(testChars)
	if req.ExposureCompensation != 6 {
		t.Fatalf("exposure = %d, want 6", req.ExposureCompensation)
	}
}

func TestFocusMapping(t *testing.T) {
	s := NewState()
	s.Handle(protocol.Command{Kind: protocol.CmdFocus, Focus: 0.3})
	req := s.BuildRequest(testChars)
	if req.FocusMode != capture.FocusManual {
		t.Fatalf("expected manual focus")
	}
	if req.FocusDistance != 3.0 {
		t.Fatalf("focus distance = %v, want 3.0", req.FocusDistance)
	}

	// fixed-focus device: manual focus not applicable
	fixed := testChars
	fixed.MinFocusDistance = 0
	req = s.BuildRequest(fixed)
	if req.FocusMode != capture.FocusAuto || req.FocusDistance != 0 {
		t.Fatalf("fixed-focus device got %+v", req)
	}
}

// The same state must always yield the same request regardless of the
// order updates arrived in.
func TestBuildRequestIdempotent(t *testing.T) {
	a := NewState()
	a.Handle(protocol.Command{Kind: protocol.CmdZoom, Zoom: 3.0})
	a.Handle(protocol.Command{Kind: protocol.CmdExposure, Exposure: 2})

	b := NewState()
	b.Handle(protocol.Command{Kind: protocol.CmdExposure, Exposure: 2})
	b.Handle(protocol.Command{Kind: protocol.CmdZoom, Zoom: 3.0})

	ra, rb := a.BuildRequest(testChars), b.BuildRequest(testChars)
	if ra != rb {
		t.Fatalf("order-dependent requests: %+v vs %+v", ra, rb)
	}
	if ra != a.BuildRequest(testChars) {
		t.Fatalf("repeated build differs")
	}
}
