package capture

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/kbinani/screenshot"
)

// ScreenDevice captures the primary display and converts it to planar
// YUV420, so a machine without a camera can still feed the stream path.
type ScreenDevice struct {
	Display int

	mu      sync.Mutex
	applied Request
	running bool
}

func NewScreenDevice(display int) *ScreenDevice {
	return &ScreenDevice{Display: display}
}

func (d *ScreenDevice) Name() string { return "screen" }

func (d *ScreenDevice) Characteristics() Characteristics {
	bounds := image.Rect(0, 0, 1920, 1080)
	if screenshot.NumActiveDisplays() > d.Display {
		bounds = screenshot.GetDisplayBounds(d.Display)
	}
	return Characteristics{
		ActiveArray:      bounds,
		MaxDigitalZoom:   1.0,
		ExposureRangeMin: 0,
		ExposureRangeMax: 0,
		// A screen has no lens; focus commands are not applicable.
		MinFocusDistance: 0,
	}
}

// Apply records the request; a display has no optics to drive, so the
// parameters are accepted and ignored.
func (d *ScreenDevice) Apply(req Request) error {
	d.mu.Lock()
	d.applied = req
	d.mu.Unlock()
	return nil
}

func (d *ScreenDevice) Start(cfg Config, sink FrameSink) (*Session, error) {
	if screenshot.NumActiveDisplays() <= d.Display {
		return nil, fmt.Errorf("capture: display %d not available", d.Display)
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = 15
	}
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil, fmt.Errorf("capture: screen device already started")
	}
	d.running = true
	d.mu.Unlock()

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Second / time.Duration(fps))
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case now := <-ticker.C:
				img, err := screenshot.CaptureDisplay(d.Display)
				if err != nil {
					logger.Debugf("screen grab failed: %v", err)
					continue
				}
				frame := rgbaToYUV420(img, now)
				if frame != nil {
					sink(frame)
				}
			}
		}
	}()

	return NewSession(
		Stage{Name: "capture-session", Close: func() error {
			close(quit)
			<-done
			return nil
		}},
		Stage{Name: "device", Close: func() error {
			d.mu.Lock()
			d.running = false
			d.mu.Unlock()
			return nil
		}},
		Stage{Name: "buffer-reader", Close: func() error { return nil }},
		Stage{Name: "preview-surface", Close: func() error { return nil }},
	), nil
}

// rgbaToYUV420 converts a captured RGBA image to planar YUV420 using
// BT.601 integer coefficients. Odd trailing rows/columns are cropped.
func rgbaToYUV420(img *image.RGBA, ts time.Time) *RawFrame {
	w := img.Rect.Dx() &^ 1
	h := img.Rect.Dy() &^ 1
	if w <= 0 || h <= 0 {
		return nil
	}
	luma := make([]byte, w*h)
	cb := make([]byte, w*h/4)
	cr := make([]byte, w*h/4)
	for y := 0; y < h; y++ {
		src := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			r := int(src[x*4])
			g := int(src[x*4+1])
			b := int(src[x*4+2])
			luma[y*w+x] = byte(((66*r + 129*g + 25*b + 128) >> 8) + 16)
			if y%2 == 0 && x%2 == 0 {
				ci := (y/2)*(w/2) + x/2
				cb[ci] = byte(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
				cr[ci] = byte(((112*r - 94*g - 18*b + 128) >> 8) + 128)
			}
		}
	}
	return NewRawFrame(
		Plane{Data: luma, PixelStride: 1, RowStride: w},
		Plane{Data: cb, PixelStride: 1, RowStride: w / 2},
		Plane{Data: cr, PixelStride: 1, RowStride: w / 2},
		w, h, ts, nil,
	)
}
