package capture

import (
	"fmt"
	"image"
	"sync"
	"time"
)

// ChromaLayout selects how the synthetic source lays out its chroma
// planes, mirroring the two layouts real camera stacks hand over.
type ChromaLayout int

const (
	// ChromaPlanar delivers Cb and Cr as independent contiguous planes
	// (pixel stride 1).
	ChromaPlanar ChromaLayout = iota
	// ChromaInterleaved delivers Cb and Cr as strided views over one
	// shared interleaved buffer (pixel stride 2).
	ChromaInterleaved
)

const syntheticPoolSize = 4

// SyntheticDevice produces a moving test pattern. It models the scarce
// buffer economy of a real camera: frames draw from a fixed pool of
// buffers and delivery stalls (drops) when the consumer does not close
// frames fast enough.
type SyntheticDevice struct {
	Layout ChromaLayout

	mu      sync.Mutex
	applied Request
	quit    chan struct{}
	running bool
	drops   uint64
}

func NewSyntheticDevice(layout ChromaLayout) *SyntheticDevice {
	return &SyntheticDevice{Layout: layout}
}

func (d *SyntheticDevice) Name() string { return "synthetic" }

func (d *SyntheticDevice) Characteristics() Characteristics {
	return Characteristics{
		ActiveArray:      image.Rect(0, 0, 1280, 720),
		MaxDigitalZoom:   8.0,
		ExposureRangeMin: -6,
		ExposureRangeMax: 6,
		MinFocusDistance: 10.0,
	}
}

// Applied returns the last request seen, for tests.
func (d *SyntheticDevice) Applied() Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.applied
}

func (d *SyntheticDevice) Apply(req Request) error {
	d.mu.Lock()
	d.applied = req
	d.mu.Unlock()
	return nil
}

// Drops reports frames skipped because the buffer pool was empty.
func (d *SyntheticDevice) Drops() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drops
}

func (d *SyntheticDevice) Start(cfg Config, sink FrameSink) (*Session, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("capture: invalid synthetic resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Width%2 != 0 || cfg.Height%2 != 0 {
		return nil, fmt.Errorf("capture: synthetic resolution must be even, got %dx%d", cfg.Width, cfg.Height)
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = 30
	}
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil, fmt.Errorf("capture: synthetic device already started")
	}
	d.running = true
	quit := make(chan struct{})
	d.quit = quit
	d.mu.Unlock()

	pool := make(chan []byte, syntheticPoolSize)
	bufSize := cfg.Width * cfg.Height * 2
	for i := 0; i < syntheticPoolSize; i++ {
		pool <- make([]byte, bufSize)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Second / time.Duration(fps))
		defer ticker.Stop()
		seq := 0
		for {
			select {
			case <-quit:
				return
			case now := <-ticker.C:
				var buf []byte
				select {
				case buf = <-pool:
				default:
					d.mu.Lock()
					d.drops++
					d.mu.Unlock()
					continue
				}
				frame := d.fillPattern(buf, cfg.Width, cfg.Height, seq, now, pool)
				seq++
				sink(frame)
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
		Stage{Name: "buffer-reader", Close: func() error {
			for {
				select {
				case <-pool:
				default:
					return nil
				}
			}
		}},
		Stage{Name: "preview-surface", Close: func() error { return nil }},
	), nil
}

// fillPattern draws a scrolling gradient so consecutive frames differ and
// encoded sizes stay realistic.
func (d *SyntheticDevice) fillPattern(buf []byte, w, h, seq int, ts time.Time, pool chan []byte) *RawFrame {
	lumaSize := w * h
	chromaW, chromaH := w/2, h/2
	luma := buf[:lumaSize]
	for y := 0; y < h; y++ {
		row := luma[y*w : (y+1)*w]
		for x := range row {
			row[x] = byte((x + y + seq*3) & 0xFF)
		}
	}
	var cb, cr Plane
	switch d.Layout {
	case ChromaInterleaved:
		inter := buf[lumaSize : lumaSize+chromaW*chromaH*2]
		for i := 0; i < chromaW*chromaH; i++ {
			inter[i*2] = byte((i + seq) & 0xFF)
			inter[i*2+1] = byte((i*2 + seq) & 0xFF)
		}
		cb = Plane{Data: inter, PixelStride: 2, RowStride: chromaW * 2}
		cr = Plane{Data: inter[1:], PixelStride: 2, RowStride: chromaW * 2}
	default:
		cbData := buf[lumaSize : lumaSize+chromaW*chromaH]
		crData := buf[lumaSize+chromaW*chromaH : lumaSize+chromaW*chromaH*2]
		for i := 0; i < chromaW*chromaH; i++ {
			cbData[i] = byte((i + seq) & 0xFF)
			crData[i] = byte((i*2 + seq) & 0xFF)
		}
		cb = Plane{Data: cbData, PixelStride: 1, RowStride: chromaW}
		cr = Plane{Data: crData, PixelStride: 1, RowStride: chromaW}
	}
	y := Plane{Data: luma, PixelStride: 1, RowStride: w}
	return NewRawFrame(y, cb, cr, w, h, ts, func() {
		select {
		case pool <- buf:
		default:
		}
	})
}
