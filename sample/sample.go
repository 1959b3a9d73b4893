// Package sample defines the tensors exchanged between the dataset, the model
// and the evaluation loop.
package sample

import "fmt"

// Ignore marks a pixel whose true class is unknown. Such pixels are excluded
// from every metric.
const Ignore int32 = -1

// Image is a channels-first float32 image.
type Image struct {
	Channels int
	Height   int
	Width    int
	Data     []float32 // len = Channels*Height*Width, index c*H*W + y*W + x
}

// NewImage allocates a zeroed Image.
func NewImage(channels, height, width int) Image {
	return Image{
		Channels: channels,
		Height:   height,
		Width:    width,
		Data:     make([]float32, channels*height*width),
	}
}

// At returns the value of channel c at (x, y).
func (im Image) At(c, x, y int) float32 {
	return im.Data[c*im.Height*im.Width+y*im.Width+x]
}

// Set stores v for channel c at (x, y).
func (im Image) Set(c, x, y int, v float32) {
	im.Data[c*im.Height*im.Width+y*im.Width+x] = v
}

// LabelMap holds one class index per pixel.
type LabelMap struct {
	Width  int
	Height int
	Data   []int32 // row-major, len = Width*Height
}

// NewLabelMap allocates a LabelMap filled with class 0.
func NewLabelMap(width, height int) LabelMap {
	return LabelMap{Width: width, Height: height, Data: make([]int32, width*height)}
}

// At returns the label at (x, y).
func (m LabelMap) At(x, y int) int32 {
	return m.Data[y*m.Width+x]
}

// Set stores label v at (x, y).
func (m LabelMap) Set(x, y int, v int32) {
	m.Data[y*m.Width+x] = v
}

// SameSize reports whether m and o cover the same pixel grid.
func (m LabelMap) SameSize(o LabelMap) bool {
	return m.Width == o.Width && m.Height == o.Height
}

// ScoreMap holds per-class scores for every pixel, channels-first.
type ScoreMap struct {
	Classes int
	Height  int
	Width   int
	Data    []float32 // len = Classes*Height*Width
}

// Argmax returns the highest scoring class at every pixel. Ties resolve to
// the lowest class index.
func Argmax(s ScoreMap) (LabelMap, error) {
	plane := s.Height * s.Width
	if s.Classes <= 0 {
		return LabelMap{}, fmt.Errorf("score map has %d classes", s.Classes)
	}
	if len(s.Data) != s.Classes*plane {
		return LabelMap{}, fmt.Errorf("score map data length %d, want %d", len(s.Data), s.Classes*plane)
	}

	out := NewLabelMap(s.Width, s.Height)
	for p := 0; p < plane; p++ {
		best := int32(0)
		bestVal := s.Data[p]
		for c := 1; c < s.Classes; c++ {
			if v := s.Data[c*plane+p]; v > bestVal {
				bestVal = v
				best = int32(c)
			}
		}
		out.Data[p] = best
	}
	return out, nil
}

// Sample is one labeled image as produced by a dataset.
type Sample struct {
	Index int
	ID    string
	Image Image
	Label LabelMap
}
