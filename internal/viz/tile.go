package viz

import (
	"image"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
)

// GridShape returns the rows and columns used to tile n images: as many rows
// as the integer square root of n, then the fewest columns that fit them all.
func GridShape(n int) (rows, cols int) {
	if n <= 0 {
		return 0, 0
	}
	rows = int(math.Sqrt(float64(n)))
	for rows*cols < n {
		cols++
	}
	return rows, cols
}

// Tile arranges imgs row-major on a grid chosen by GridShape.
// It returns nil when imgs is empty.
func Tile(imgs []image.Image) *image.RGBA {
	rows, cols := GridShape(len(imgs))
	return TileShape(imgs, rows, cols)
}

// TileShape arranges imgs row-major on a rows x cols grid. Every cell has the
// smallest height and the smallest width found among imgs; larger images are
// scaled down keeping their aspect ratio and centered in the cell. Unused
// cells and margins are black. Images beyond rows*cols are dropped.
func TileShape(imgs []image.Image, rows, cols int) *image.RGBA {
	if len(imgs) == 0 || rows <= 0 || cols <= 0 {
		return nil
	}

	cellW, cellH := math.MaxInt, math.MaxInt
	for _, img := range imgs {
		b := img.Bounds()
		cellW = min(cellW, b.Dx())
		cellH = min(cellH, b.Dy())
	}

	out := image.NewRGBA(image.Rect(0, 0, cols*cellW, rows*cellH))
	draw.Draw(out, out.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	for i, img := range imgs {
		if i >= rows*cols {
			break
		}
		fitted := fit(img, cellW, cellH)
		fb := fitted.Bounds()
		cell := image.Pt((i%cols)*cellW, (i/cols)*cellH)
		offset := image.Pt((cellW-fb.Dx())/2, (cellH-fb.Dy())/2)
		dst := image.Rectangle{Min: cell.Add(offset), Max: cell.Add(offset).Add(fb.Size())}
		draw.Draw(out, dst, fitted, fb.Min, draw.Src)
	}
	return out
}

// fit scales img to fit inside w x h keeping its aspect ratio.
func fit(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	scale := math.Min(float64(h)/float64(b.Dy()), float64(w)/float64(b.Dx()))
	nw := max(1, int(scale*float64(b.Dx())))
	nh := max(1, int(scale*float64(b.Dy())))
	if nw == b.Dx() && nh == b.Dy() {
		return img
	}
	return resize.Resize(uint(nw), uint(nh), img, resize.Bilinear)
}
