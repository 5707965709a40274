package capture

import (
	"image"
	"image/color"
	"testing"
	"time"
)

func TestRGBAToYUV420Gray(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, color.RGBA{128, 128, 128, 255})
		}
	}
	frame := rgbaToYUV420(img, time.Now())
	if frame == nil {
		t.Fatalf("nil frame")
	}
	defer frame.Close()
	if frame.Width != 4 || frame.Height != 4 {
		t.Fatalf("frame %dx%d", frame.Width, frame.Height)
	}
	// mid gray: luma near 126, chroma neutral at 128
	if y := frame.Y.Data[0]; y < 120 || y > 132 {
		t.Fatalf("luma %d for mid gray", y)
	}
	if cb := frame.Cb.Data[0]; cb < 126 || cb > 130 {
		t.Fatalf("cb %d for gray, want ~128", cb)
	}
	if cr := frame.Cr.Data[0]; cr < 126 || cr > 130 {
		t.Fatalf("cr %d for gray, want ~128", cr)
	}
}

func TestRGBAToYUV420RedHasHighCr(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	frame := rgbaToYUV420(img, time.Now())
	defer frame.Close()
	if cr := frame.Cr.Data[0]; cr < 200 {
		t.Fatalf("cr %d for pure red, want high", cr)
	}
	if cb := frame.Cb.Data[0]; cb > 128 {
		t.Fatalf("cb %d for pure red, want below neutral", cb)
	}
}

func TestRGBAToYUV420CropsOddEdges(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 5, 3))
	frame := rgbaToYUV420(img, time.Now())
	defer frame.Close()
	if frame.Width != 4 || frame.Height != 2 {
		t.Fatalf("odd input cropped to %dx%d, want 4x2", frame.Width, frame.Height)
	}
	if len(frame.Cb.Data) != 2 || len(frame.Cr.Data) != 2 {
		t.Fatalf("chroma plane sizes %d/%d", len(frame.Cb.Data), len(frame.Cr.Data))
	}
}
