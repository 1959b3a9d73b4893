package dataset

import (
	"image"
	"image/color"
	"math"

	"github.com/jamesainslie/go-fcneval/sample"
)

// MeanBGR is the per-channel mean subtracted from images, in BGR order.
var MeanBGR = [3]float32{104.00698793, 116.66876762, 122.67891434}

// Transform converts img to the network input layout: BGR channel order,
// MeanBGR subtracted, channels first.
func Transform(img image.Image) sample.Image {
	b := img.Bounds()
	out := sample.NewImage(3, b.Dy(), b.Dx())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			out.Set(0, x, y, float32(c.B)-MeanBGR[0])
			out.Set(1, x, y, float32(c.G)-MeanBGR[1])
			out.Set(2, x, y, float32(c.R)-MeanBGR[2])
		}
	}
	return out
}

// Untransform reverses Transform, returning a displayable RGB image.
func Untransform(im sample.Image) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, im.Width, im.Height))
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			out.SetRGBA(x, y, color.RGBA{
				R: toByte(im.At(2, x, y) + MeanBGR[2]),
				G: toByte(im.At(1, x, y) + MeanBGR[1]),
				B: toByte(im.At(0, x, y) + MeanBGR[0]),
				A: 255,
			})
		}
	}
	return out
}

func toByte(v float32) uint8 {
	r := math.Round(float64(v))
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return uint8(r)
}
