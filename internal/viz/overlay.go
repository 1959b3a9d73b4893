package viz

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/jamesainslie/go-fcneval/sample"
)

// overlayAlpha is the weight of the label color over the grayscale image.
const overlayAlpha = 0.5

var black = color.RGBA{A: 255}

// LabelToRGB paints each pixel with its class color. Ignored pixels and
// labels outside the palette get black. When img is non-nil every color,
// black included, is blended over a grayscale copy of img.
func LabelToRGB(lbl sample.LabelMap, img image.Image, cmap []colorful.Color) (*image.RGBA, error) {
	if img != nil {
		b := img.Bounds()
		if b.Dx() != lbl.Width || b.Dy() != lbl.Height {
			return nil, fmt.Errorf("viz: image %dx%d does not match labels %dx%d",
				b.Dx(), b.Dy(), lbl.Width, lbl.Height)
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, lbl.Width, lbl.Height))
	for y := 0; y < lbl.Height; y++ {
		for x := 0; x < lbl.Width; x++ {
			var c colorful.Color
			if l := lbl.At(x, y); l >= 0 && int(l) < len(cmap) {
				c = cmap[l]
			}
			if img != nil {
				b := img.Bounds()
				px, _ := colorful.MakeColor(img.At(b.Min.X+x, b.Min.Y+y))
				c = c.BlendRgb(gray(px), 1-overlayAlpha)
			}
			out.SetRGBA(x, y, RGBA(c))
		}
	}
	return out, nil
}

// Segmentation renders one sample as a 2x3 panel: the first row shows the
// image, the true labels and the true labels over the image; the second row
// shows the same for the prediction. Pixels ignored in truth have no label
// color in any view: black alone, dimmed image in the overlays. A legend of
// the classes present is drawn when names is non-empty.
func Segmentation(pred, truth sample.LabelMap, img image.Image, nClass int, names []string) (*image.RGBA, error) {
	if img == nil {
		return nil, fmt.Errorf("viz: nil image")
	}
	if !pred.SameSize(truth) {
		return nil, fmt.Errorf("viz: prediction %dx%d does not match truth %dx%d",
			pred.Width, pred.Height, truth.Width, truth.Height)
	}

	cmap := LabelColormap(nClass)
	masked := maskIgnored(pred, truth)

	var panels []image.Image
	for _, lbl := range []sample.LabelMap{truth, masked} {
		plain, err := LabelToRGB(lbl, nil, cmap)
		if err != nil {
			return nil, err
		}
		over, err := LabelToRGB(lbl, img, cmap)
		if err != nil {
			return nil, err
		}
		if len(names) > 0 {
			drawLegend(plain, lbl, cmap, names)
			drawLegend(over, lbl, cmap, names)
		}
		panels = append(panels, img, plain, over)
	}

	return TileShape(panels, 2, 3), nil
}

// maskIgnored copies pred, marking pixels ignored in truth as ignored.
func maskIgnored(pred, truth sample.LabelMap) sample.LabelMap {
	out := sample.LabelMap{Width: pred.Width, Height: pred.Height, Data: make([]int32, len(pred.Data))}
	for i, v := range pred.Data {
		if truth.Data[i] == sample.Ignore {
			v = sample.Ignore
		}
		out.Data[i] = v
	}
	return out
}

// drawLegend writes a swatch and name for every class present in lbl,
// top-left, one per line.
func drawLegend(dst *image.RGBA, lbl sample.LabelMap, cmap []colorful.Color, names []string) {
	present := make([]bool, len(cmap))
	for _, v := range lbl.Data {
		if v >= 0 && int(v) < len(present) {
			present[v] = true
		}
	}

	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil() + 2
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
	}

	y := 2
	for cls, ok := range present {
		if !ok || cls >= len(names) {
			continue
		}
		if y+lineHeight > dst.Bounds().Dy() {
			return
		}
		swatch := image.Rect(2, y, 2+lineHeight-2, y+lineHeight-2)
		draw.Draw(dst, swatch, image.NewUniform(RGBA(cmap[cls])), image.Point{}, draw.Src)

		label := names[cls]
		width := font.MeasureString(face, label).Ceil()
		box := image.Rect(swatch.Max.X+2, y, swatch.Max.X+4+width, y+lineHeight-2)
		draw.Draw(dst, box, image.NewUniform(black), image.Point{}, draw.Src)

		d.Dot = fixed.P(box.Min.X+1, y+face.Metrics().Ascent.Ceil())
		d.DrawString(label)
		y += lineHeight
	}
}
