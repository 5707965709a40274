package codec

import (
	"bytes"
	"errors"
	"image/jpeg"
	"testing"
	"time"

	"CamLink/client/service/capture"
)

// planarFrame builds a frame whose chroma planes are contiguous blocks
// with pixel stride 1.
func planarFrame(w, h int) *capture.RawFrame {
	y := make([]byte, w*h)
	cb := make([]byte, w*h/4)
	cr := make([]byte, w*h/4)
	for i := range y {
		y[i] = byte(i)
	}
	for i := range cb {
		cb[i] = 0x40
		cr[i] = 0xC0
	}
	return capture.NewRawFrame(
		capture.Plane{Data: y, PixelStride: 1, RowStride: w},
		capture.Plane{Data: cb, PixelStride: 1, RowStride: w / 2},
		capture.Plane{Data: cr, PixelStride: 1, RowStride: w / 2},
		w, h, time.Now(), nil)
}

// interleavedFrame builds a frame whose chroma planes are strided views
// over one shared CbCr buffer, pixel stride 2.
func interleavedFrame(w, h int) *capture.RawFrame {
	y := make([]byte, w*h)
	for i := range y {
		y[i] = 0x80
	}
	shared := make([]byte, w*h/2)
	for i := 0; i < len(shared); i += 2 {
		shared[i] = 0x40   // Cb
		shared[i+1] = 0xC0 // Cr
	}
	return capture.NewRawFrame(
		capture.Plane{Data: y, PixelStride: 1, RowStride: w},
		capture.Plane{Data: shared, PixelStride: 2, RowStride: w},
		capture.Plane{Data: shared[1:], PixelStride: 2, RowStride: w},
		w, h, time.Now(), nil)
}

func decodeDims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("encoded bytes are not a valid JPEG: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestEncodePlanar(t *testing.T) {
	c := New(0)
	frame := planarFrame(64, 48)
	data, err := c.Encode(frame)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if w, h := decodeDims(t, data); w != 64 || h != 48 {
		t.Fatalf("decoded %dx%d, want 64x48", w, h)
	}
	if !frame.Released() {
		t.Fatalf("frame not closed after successful encode")
	}
	if c.Drain() != 0 {
		t.Fatalf("%d scratch buffers still in flight", c.Drain())
	}
}

func TestEncodeInterleaved(t *testing.T) {
	c := New(90)
	frame := interleavedFrame(64, 48)
	data, err := c.Encode(frame)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if w, h := decodeDims(t, data); w != 64 || h != 48 {
		t.Fatalf("decoded %dx%d, want 64x48", w, h)
	}
	full, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// uniform Cb=0x40 Cr=0xC0 over mid luma is a reddish tone; just
	// confirm the chroma did not collapse to gray.
	r, g, b, _ := full.At(32, 24).RGBA()
	if r == g && g == b {
		t.Fatalf("chroma lost in interleaved path: got gray pixel")
	}
	if !frame.Released() {
		t.Fatalf("frame not closed after successful encode")
	}
}

func TestEncodeRejectsBadFormatAndStillCloses(t *testing.T) {
	c := New(80)
	frame := planarFrame(64, 48)
	frame.Y.PixelStride = 3
	if _, err := c.Encode(frame); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if !frame.Released() {
		t.Fatalf("frame must be closed on failure too")
	}

	odd := planarFrame(64, 48)
	odd.Width = 63
	if _, err := c.Encode(odd); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("odd width: expected ErrUnsupportedFormat, got %v", err)
	}
	if !odd.Released() {
		t.Fatalf("odd-width frame must be closed")
	}
	if c.Drain() != 0 {
		t.Fatalf("scratch leaked on the failure path")
	}
}

func TestScratchPoolBounds(t *testing.T) {
	var p scratchPool
	slots := make([]int, 0, poolSlots)
	for i := 0; i < poolSlots; i++ {
		slot, buf, err := p.acquire(1024)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if len(buf) != 1024 {
			t.Fatalf("acquire %d: buffer length %d", i, len(buf))
		}
		slots = append(slots, slot)
	}
	if _, _, err := p.acquire(1024); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted with every slot busy, got %v", err)
	}
	p.release(slots[0])
	if _, _, err := p.acquire(4096); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if p.inFlight() != poolSlots {
		t.Fatalf("inFlight = %d, want %d", p.inFlight(), poolSlots)
	}
}
