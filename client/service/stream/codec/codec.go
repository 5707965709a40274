// Package codec turns planar capture frames into single-frame JPEGs.
//
// The capture collaborator hands over a luma plane and two chroma
// planes whose pixel stride depends on the device's memory layout. The
// codec normalizes those into one scratch buffer (luma followed by
// chroma), compresses it, and reuses scratch memory from a small fixed
// pool so sustained frame rates do not churn the allocator.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"CamLink/client/service/capture"
)

// DefaultQuality is the fixed JPEG quality factor for streamed frames.
const DefaultQuality = 80

var ErrUnsupportedFormat = errors.New("codec: unsupported pixel format")

type Codec struct {
	Quality int
	pool    scratchPool
}

func New(quality int) *Codec {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Codec{Quality: quality}
}

// Encode compresses one raw frame. The frame is owned by the codec for
// the duration of the call and is always closed before returning, even
// on failure; its buffer is a scarce capture resource. A nil byte slice
// with a non-nil error means the frame was dropped.
func (c *Codec) Encode(frame *capture.RawFrame) ([]byte, error) {
	defer frame.Close()

	w, h := frame.Width, frame.Height
	if w <= 0 || h <= 0 || w%2 != 0 || h%2 != 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrUnsupportedFormat, w, h)
	}
	if frame.Y.PixelStride != 1 {
		return nil, fmt.Errorf("%w: luma pixel stride %d", ErrUnsupportedFormat, frame.Y.PixelStride)
	}
	if frame.Cb.PixelStride != frame.Cr.PixelStride {
		return nil, fmt.Errorf("%w: mismatched chroma strides %d/%d",
			ErrUnsupportedFormat, frame.Cb.PixelStride, frame.Cr.PixelStride)
	}
	stride := frame.Cb.PixelStride
	if stride != 1 && stride != 2 {
		return nil, fmt.Errorf("%w: chroma pixel stride %d", ErrUnsupportedFormat, stride)
	}

	// Layout: [luma w*h][chroma w*h/2][planar spare w*h/2].
	lumaSize := w * h
	chromaSize := w * h / 2
	slot, scratch, err := c.pool.acquire(lumaSize + chromaSize*2)
	if err != nil {
		return nil, err
	}
	defer c.pool.release(slot)

	if err := copyLuma(scratch[:lumaSize], frame.Y, w, h); err != nil {
		return nil, err
	}
	chroma := scratch[lumaSize : lumaSize+chromaSize]
	interleaved := stride == 2
	if interleaved {
		if err := interleaveChroma(chroma, frame.Cb, frame.Cr, w/2, h/2); err != nil {
			return nil, err
		}
	} else {
		if err := blockCopyChroma(chroma, frame.Cb, frame.Cr, w/2, h/2); err != nil {
			return nil, err
		}
	}

	img, err := assembleYCbCr(scratch, w, h, interleaved)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: c.Quality}); err != nil {
		return nil, fmt.Errorf("codec: jpeg encode failed: %w", err)
	}
	return out.Bytes(), nil
}

// Drain returns the number of scratch buffers currently in flight, for
// tests and stall diagnostics.
func (c *Codec) Drain() int {
	return c.pool.inFlight()
}

func copyLuma(dst []byte, y capture.Plane, w, h int) error {
	if len(y.Data) < (h-1)*y.RowStride+w {
		return fmt.Errorf("%w: short luma plane", ErrUnsupportedFormat)
	}
	for row := 0; row < h; row++ {
		copy(dst[row*w:(row+1)*w], y.Data[row*y.RowStride:row*y.RowStride+w])
	}
	return nil
}

// interleaveChroma handles pixel stride 2: the planes are strided views
// over interleaved memory, so the output alternates one byte from each
// plane per sample position.
func interleaveChroma(dst []byte, cb, cr capture.Plane, cw, ch int) error {
	need := (ch-1)*cb.RowStride + (cw-1)*2 + 1
	if len(cb.Data) < need || len(cr.Data) < need {
		return fmt.Errorf("%w: short chroma plane", ErrUnsupportedFormat)
	}
	pos := 0
	for row := 0; row < ch; row++ {
		cbRow := cb.Data[row*cb.RowStride:]
		crRow := cr.Data[row*cr.RowStride:]
		for x := 0; x < cw; x++ {
			dst[pos] = cbRow[x*2]
			dst[pos+1] = crRow[x*2]
			pos += 2
		}
	}
	return nil
}

// blockCopyChroma handles truly planar input: each chroma plane lands as
// one contiguous block, Cb first (semi-planar layout).
func blockCopyChroma(dst []byte, cb, cr capture.Plane, cw, ch int) error {
	if len(cb.Data) < (ch-1)*cb.RowStride+cw || len(cr.Data) < (ch-1)*cr.RowStride+cw {
		return fmt.Errorf("%w: short chroma plane", ErrUnsupportedFormat)
	}
	half := cw * ch
	for row := 0; row < ch; row++ {
		copy(dst[row*cw:(row+1)*cw], cb.Data[row*cb.RowStride:row*cb.RowStride+cw])
		copy(dst[half+row*cw:half+(row+1)*cw], cr.Data[row*cr.RowStride:row*cr.RowStride+cw])
	}
	return nil
}

// assembleYCbCr builds a 4:2:0 image over the scratch buffer. For the
// interleaved layout the chroma pairs are split into the spare planar
// region first; the planar layout is referenced in place.
func assembleYCbCr(scratch []byte, w, h int, interleaved bool) (*image.YCbCr, error) {
	lumaSize := w * h
	chromaSize := w * h / 2
	half := chromaSize / 2
	var cbPlane, crPlane []byte
	if interleaved {
		chroma := scratch[lumaSize : lumaSize+chromaSize]
		spare := scratch[lumaSize+chromaSize:]
		for i := 0; i < half; i++ {
			spare[i] = chroma[i*2]
			spare[half+i] = chroma[i*2+1]
		}
		cbPlane = spare[:half]
		crPlane = spare[half : half*2]
	} else {
		cbPlane = scratch[lumaSize : lumaSize+half]
		crPlane = scratch[lumaSize+half : lumaSize+chromaSize]
	}
	return &image.YCbCr{
		Y:              scratch[:lumaSize],
		Cb:             cbPlane,
		Cr:             crPlane,
		YStride:        w,
		CStride:        w / 2,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, w, h),
	}, nil
}
