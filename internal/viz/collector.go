package viz

import (
	"image"

	"github.com/jamesainslie/go-fcneval/sample"
)

// DefaultMaxTiles is the number of samples kept for the montage.
const DefaultMaxTiles = 9

// Collector keeps the panels of the first samples it is given.
// It is not safe for concurrent use.
type Collector struct {
	max    int
	nClass int
	names  []string
	tiles  []image.Image
}

// NewCollector returns a Collector keeping at most limit panels. A
// non-positive limit selects DefaultMaxTiles. names, if set, enables the
// class legend.
func NewCollector(limit, nClass int, names []string) *Collector {
	if limit <= 0 {
		limit = DefaultMaxTiles
	}
	return &Collector{max: limit, nClass: nClass, names: names}
}

// Add renders a panel for the sample unless the collector is full. It
// reports whether the panel was kept.
func (c *Collector) Add(pred, truth sample.LabelMap, img image.Image) (bool, error) {
	if c.Full() {
		return false, nil
	}
	panel, err := Segmentation(pred, truth, img, c.nClass, c.names)
	if err != nil {
		return false, err
	}
	c.tiles = append(c.tiles, panel)
	return true, nil
}

// Full reports whether no more panels will be kept.
func (c *Collector) Full() bool {
	return len(c.tiles) >= c.max
}

// Len returns the number of panels kept.
func (c *Collector) Len() int {
	return len(c.tiles)
}

// Image tiles the kept panels into one montage, or returns nil if none.
func (c *Collector) Image() *image.RGBA {
	return Tile(c.tiles)
}
