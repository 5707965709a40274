package session

import (
	"image"
	"image/color"
)

// Filter names the optional last pipeline stage.
type Filter string

const (
	FilterNone        Filter = ""
	FilterGrayscale   Filter = "grayscale"
	FilterBlur        Filter = "blur"
	FilterSharpen     Filter = "sharpen"
	FilterEdgeEnhance Filter = "edge-enhance"
)

// ValidFilter reports whether name is a known filter.
func ValidFilter(name Filter) bool {
	switch name {
	case FilterNone, FilterGrayscale, FilterBlur, FilterSharpen, FilterEdgeEnhance:
		return true
	}
	return false
}

// Adjustments are the per-session image parameters, applied in fixed
// order: brightness, contrast, saturation, then the optional filter.
// 1.0 everywhere with no filter is the identity.
type Adjustments struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
	Filter     Filter  `json:"filter"`
}

func DefaultAdjustments() Adjustments {
	return Adjustments{Brightness: 1.0, Contrast: 1.0, Saturation: 1.0, Filter: FilterNone}
}

func (a Adjustments) identity() bool {
	return a.Brightness == 1.0 && a.Contrast == 1.0 && a.Saturation == 1.0 && a.Filter == FilterNone
}

// Apply runs the pipeline over src in place-safe fashion: the input is
// never mutated; the identity transform returns src unchanged.
func (a Adjustments) Apply(src *image.RGBA) *image.RGBA {
	if src == nil || a.identity() {
		return src
	}
	out := applyScalars(src, a.Brightness, a.Contrast, a.Saturation)
	switch a.Filter {
	case FilterGrayscale:
		grayscale(out)
	case FilterBlur:
		out = convolve3x3(out, [9]float64{1, 1, 1, 1, 1, 1, 1, 1, 1}, 9)
	case FilterSharpen:
		out = convolve3x3(out, [9]float64{0, -1, 0, -1, 5, -1, 0, -1, 0}, 1)
	case FilterEdgeEnhance:
		out = convolve3x3(out, [9]float64{-1, -1, -1, -1, 10, -1, -1, -1, -1}, 2)
	}
	return out
}

// applyScalars does brightness, contrast and saturation in one pass.
func applyScalars(src *image.RGBA, brightness, contrast, saturation float64) *image.RGBA {
	bounds := src.Rect
	out := image.NewRGBA(bounds)
	w, h := bounds.Dx(), bounds.Dy()
	for y := 0; y < h; y++ {
		si := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		di := out.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		for x := 0; x < w; x++ {
			r := float64(src.Pix[si])
			g := float64(src.Pix[si+1])
			b := float64(src.Pix[si+2])

			r *= brightness
			g *= brightness
			b *= brightness

			r = (r-128)*contrast + 128
			g = (g-128)*contrast + 128
			b = (b-128)*contrast + 128

			if saturation != 1.0 {
				gray := 0.299*r + 0.587*g + 0.114*b
				r = gray + (r-gray)*saturation
				g = gray + (g-gray)*saturation
				b = gray + (b-gray)*saturation
			}

			out.Pix[di] = clampByte(r)
			out.Pix[di+1] = clampByte(g)
			out.Pix[di+2] = clampByte(b)
			out.Pix[di+3] = src.Pix[si+3]
			si += 4
			di += 4
		}
	}
	return out
}

func grayscale(img *image.RGBA) {
	bounds := img.Rect
	w, h := bounds.Dx(), bounds.Dy()
	for y := 0; y < h; y++ {
		i := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		for x := 0; x < w; x++ {
			c := color.RGBA{img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]}
			gray := clampByte(0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B))
			img.Pix[i] = gray
			img.Pix[i+1] = gray
			img.Pix[i+2] = gray
			i += 4
		}
	}
}

// convolve3x3 applies a kernel with the given divisor; border pixels
// clamp to the nearest edge sample.
func convolve3x3(src *image.RGBA, kernel [9]float64, divisor float64) *image.RGBA {
	bounds := src.Rect
	out := image.NewRGBA(bounds)
	w, h := bounds.Dx(), bounds.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var r, g, b float64
			k := 0
			for ky := -1; ky <= 1; ky++ {
				sy := clampIndex(y+ky, h)
				for kx := -1; kx <= 1; kx++ {
					sx := clampIndex(x+kx, w)
					i := src.PixOffset(bounds.Min.X+sx, bounds.Min.Y+sy)
					weight := kernel[k]
					r += float64(src.Pix[i]) * weight
					g += float64(src.Pix[i+1]) * weight
					b += float64(src.Pix[i+2]) * weight
					k++
				}
			}
			di := out.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			out.Pix[di] = clampByte(r / divisor)
			out.Pix[di+1] = clampByte(g / divisor)
			out.Pix[di+2] = clampByte(b / divisor)
			out.Pix[di+3] = src.Pix[src.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)+3]
		}
	}
	return out
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
