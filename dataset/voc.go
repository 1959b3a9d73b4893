// Package dataset reads the PASCAL VOC class segmentation dataset.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/go-fcneval/sample"
)

// ErrEmptySplit indicates an image set file listing no images.
var ErrEmptySplit = errors.New("dataset: split has no images")

// ignoreValue is the label PNG value for object borders and unlabeled pixels.
const ignoreValue = 255

// ClassNames are the PASCAL VOC segmentation classes in label order.
var ClassNames = []string{
	"background",
	"aeroplane",
	"bicycle",
	"bird",
	"boat",
	"bottle",
	"bus",
	"car",
	"cat",
	"chair",
	"cow",
	"diningtable",
	"dog",
	"horse",
	"motorbike",
	"person",
	"potted plant",
	"sheep",
	"sofa",
	"train",
	"tv/monitor",
}

// VOC is one split of the VOC class segmentation data. Samples are
// transformed with Transform.
type VOC struct {
	dir   string // VOCdevkit/VOC2012
	split string
	ids   []string
}

// NewVOC2011ClassSeg opens a split of the VOC2011 segmentation data under
// root. Images are read from root/VOC/VOCdevkit/VOC2012 and the split lists
// image ids one per line in ImageSets/Segmentation/<split>.txt.
func NewVOC2011ClassSeg(root, split string) (*VOC, error) {
	dir := filepath.Join(root, "VOC", "VOCdevkit", "VOC2012")
	setFile := filepath.Join(dir, "ImageSets", "Segmentation", split+".txt")

	ids, err := readImageSet(setFile)
	if err != nil {
		return nil, fmt.Errorf("reading image set: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySplit, setFile)
	}

	return &VOC{dir: dir, split: split, ids: ids}, nil
}

func readImageSet(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return ids, nil
}

// Split returns the split name.
func (v *VOC) Split() string {
	return v.split
}

// Len returns the number of samples.
func (v *VOC) Len() int {
	return len(v.ids)
}

// ClassNames returns the class names in label order.
func (v *VOC) ClassNames() []string {
	return ClassNames
}

// Get loads and transforms sample i.
func (v *VOC) Get(i int) (sample.Sample, error) {
	if i < 0 || i >= len(v.ids) {
		return sample.Sample{}, fmt.Errorf("index %d out of range [0, %d)", i, len(v.ids))
	}
	id := v.ids[i]

	img, err := decodeFile(filepath.Join(v.dir, "JPEGImages", id+".jpg"))
	if err != nil {
		return sample.Sample{}, fmt.Errorf("image %s: %w", id, err)
	}
	lblImg, err := decodeFile(filepath.Join(v.dir, "SegmentationClass", id+".png"))
	if err != nil {
		return sample.Sample{}, fmt.Errorf("label %s: %w", id, err)
	}
	lbl, err := labelsFromImage(lblImg)
	if err != nil {
		return sample.Sample{}, fmt.Errorf("label %s: %w", id, err)
	}

	b := img.Bounds()
	if b.Dx() != lbl.Width || b.Dy() != lbl.Height {
		return sample.Sample{}, fmt.Errorf("%s: image %dx%d, label %dx%d",
			id, b.Dx(), b.Dy(), lbl.Width, lbl.Height)
	}

	return sample.Sample{
		Index: i,
		ID:    id,
		Image: Transform(img),
		Label: lbl,
	}, nil
}

// Untransform returns the displayable image and the labels of s.
func (v *VOC) Untransform(s sample.Sample) (image.Image, sample.LabelMap) {
	return Untransform(s.Image), s.Label
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// labelsFromImage reads class indices from a palette or grayscale PNG.
// The value 255 becomes sample.Ignore.
func labelsFromImage(img image.Image) (sample.LabelMap, error) {
	b := img.Bounds()
	lbl := sample.NewLabelMap(b.Dx(), b.Dy())

	var at func(x, y int) uint8
	switch m := img.(type) {
	case *image.Paletted:
		at = m.ColorIndexAt
	case *image.Gray:
		at = func(x, y int) uint8 { return m.GrayAt(x, y).Y }
	default:
		return sample.LabelMap{}, fmt.Errorf("unsupported label image type %T", img)
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := at(b.Min.X+x, b.Min.Y+y)
			if v == ignoreValue {
				lbl.Set(x, y, sample.Ignore)
				continue
			}
			lbl.Set(x, y, int32(v))
		}
	}
	return lbl, nil
}
