// Package viz renders segmentation results as overlay panels and tiles them
// into a single montage.
package viz

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// LabelColormap returns the PASCAL VOC colormap for n classes. Class i gets
// its color by spreading the bits of i over the high bits of R, G and B, so
// the mapping never depends on n or on the data.
func LabelColormap(n int) []colorful.Color {
	cmap := make([]colorful.Color, n)
	for i := 0; i < n; i++ {
		id := i
		var r, g, b uint8
		for j := 0; j < 8; j++ {
			r |= uint8(id&1) << (7 - j)
			g |= uint8((id>>1)&1) << (7 - j)
			b |= uint8((id>>2)&1) << (7 - j)
			id >>= 3
		}
		cmap[i] = colorful.Color{
			R: float64(r) / 255.0,
			G: float64(g) / 255.0,
			B: float64(b) / 255.0,
		}
	}
	return cmap
}

// RGBA converts a palette entry to an opaque 8-bit color.
func RGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// gray converts c to luminance using the ITU-R 709 weights.
func gray(c colorful.Color) colorful.Color {
	y := 0.2125*c.R + 0.7154*c.G + 0.0721*c.B
	return colorful.Color{R: y, G: y, B: y}
}
