package fcneval

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesainslie/go-fcneval/checkpoint"
	"github.com/jamesainslie/go-fcneval/dataset"
	"github.com/jamesainslie/go-fcneval/internal/metrics"
	"github.com/jamesainslie/go-fcneval/sample"
)

// memDataset holds samples whose image encodes the sample index, so that
// oneHotScorer can look up the prediction for it.
type memDataset struct {
	names  []string
	truths []sample.LabelMap
}

func (m *memDataset) Len() int             { return len(m.truths) }
func (m *memDataset) ClassNames() []string { return m.names }

func (m *memDataset) Get(i int) (sample.Sample, error) {
	lbl := m.truths[i]
	img := sample.NewImage(3, lbl.Height, lbl.Width)
	img.Data[0] = float32(i)
	return sample.Sample{Index: i, Image: img, Label: lbl}, nil
}

func (m *memDataset) Untransform(s sample.Sample) (image.Image, sample.LabelMap) {
	return dataset.Untransform(s.Image), s.Label
}

type oneHotScorer struct {
	nClass int
	preds  []sample.LabelMap
	calls  int
}

func (o *oneHotScorer) Score(_ context.Context, img sample.Image) (sample.ScoreMap, error) {
	o.calls++
	pred := o.preds[int(img.Data[0])]
	s := sample.ScoreMap{
		Classes: o.nClass,
		Height:  pred.Height,
		Width:   pred.Width,
		Data:    make([]float32, o.nClass*pred.Height*pred.Width),
	}
	for i, c := range pred.Data {
		s.Data[int(c)*pred.Height*pred.Width+i] = 1
	}
	return s, nil
}

func labels(w, h int, vals ...int32) sample.LabelMap {
	lbl := sample.NewLabelMap(w, h)
	copy(lbl.Data, vals)
	return lbl
}

func TestEvaluate_TwoClassScenario(t *testing.T) {
	ds := &memDataset{
		names:  []string{"background", "object"},
		truths: []sample.LabelMap{labels(2, 2, 0, 0, 1, 1)},
	}
	scorer := &oneHotScorer{nClass: 2, preds: []sample.LabelMap{labels(2, 2, 0, 1, 1, 1)}}

	res, err := Evaluate(context.Background(), dataset.NewLoader(ds, 2), scorer)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	want := map[string]float64{
		"acc":     0.75,
		"acc_cls": 0.75,
		"mean_iu": 7.0 / 12.0,
		"fwavacc": 7.0 / 12.0,
	}
	got := map[string]metrics.Value{
		"acc":     res.Summary.PixelAccuracy,
		"acc_cls": res.Summary.MeanClassAccuracy,
		"mean_iu": res.Summary.MeanIoU,
		"fwavacc": res.Summary.FWIoU,
	}
	for name, w := range want {
		g := got[name]
		if !g.OK || math.Abs(g.V-w) > 1e-9 {
			t.Errorf("%s = %v, want %v", name, g, w)
		}
	}
	if res.Summary.Samples != 1 {
		t.Errorf("Samples = %d, want 1", res.Summary.Samples)
	}
	if res.Visualized != 1 || res.Visualization == nil {
		t.Errorf("Visualized = %d, Visualization nil = %v", res.Visualized, res.Visualization == nil)
	}
}

func TestEvaluate_PerfectReport(t *testing.T) {
	truth := labels(2, 2, 0, 1, 1, 0)
	ds := &memDataset{names: []string{"a", "b"}, truths: []sample.LabelMap{truth}}
	scorer := &oneHotScorer{nClass: 2, preds: []sample.LabelMap{truth}}

	res, err := Evaluate(context.Background(), dataset.NewLoader(ds, 0), scorer)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	var buf bytes.Buffer
	if err := WriteReport(&buf, res.Summary); err != nil {
		t.Fatalf("WriteReport() error = %v", err)
	}
	want := "Accuracy: 100.0\nAccuracy Class: 100.0\nMean IU: 100.0\nFWAV Accuracy: 100.0\n"
	if buf.String() != want {
		t.Errorf("report =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestEvaluate_VisualizationCap(t *testing.T) {
	ds := &memDataset{names: []string{"a", "b", "c"}}
	scorer := &oneHotScorer{nClass: 3}
	for i := 0; i < 20; i++ {
		lbl := labels(3, 2, int32(i%3), 1, 2, 0, 1, 2)
		ds.truths = append(ds.truths, lbl)
		scorer.preds = append(scorer.preds, lbl)
	}

	res, err := Evaluate(context.Background(), dataset.NewLoader(ds, 4), scorer)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Summary.Samples != 20 || scorer.calls != 20 {
		t.Errorf("Samples = %d, calls = %d, want 20", res.Summary.Samples, scorer.calls)
	}
	if res.Visualized != 9 {
		t.Errorf("Visualized = %d, want 9", res.Visualized)
	}

	res, err = Evaluate(context.Background(), dataset.NewLoader(ds, 4), &oneHotScorer{nClass: 3, preds: scorer.preds},
		WithMaxVisualizations(4))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Visualized != 4 {
		t.Errorf("Visualized = %d, want 4", res.Visualized)
	}
}

func TestEvaluate_UndefinedReport(t *testing.T) {
	ds := &memDataset{names: []string{"a", "b"}, truths: []sample.LabelMap{labels(2, 1, -1, -1)}}
	scorer := &oneHotScorer{nClass: 2, preds: []sample.LabelMap{labels(2, 1, 0, 1)}}

	res, err := Evaluate(context.Background(), dataset.NewLoader(ds, 0), scorer)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	var buf bytes.Buffer
	_ = WriteReport(&buf, res.Summary)
	want := "Accuracy: nan\nAccuracy Class: nan\nMean IU: nan\nFWAV Accuracy: 0.0\n"
	if buf.String() != want {
		t.Errorf("report =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestEvaluate_SizeMismatch(t *testing.T) {
	ds := &memDataset{names: []string{"a", "b"}, truths: []sample.LabelMap{labels(2, 2)}}
	scorer := &oneHotScorer{nClass: 2, preds: []sample.LabelMap{labels(1, 4)}}

	_, err := Evaluate(context.Background(), dataset.NewLoader(ds, 0), scorer)
	if !errors.Is(err, metrics.ErrSizeMismatch) {
		t.Errorf("Evaluate() error = %v, want ErrSizeMismatch", err)
	}
}

func TestEvaluate_Cancelled(t *testing.T) {
	ds := &memDataset{names: []string{"a", "b"}, truths: []sample.LabelMap{labels(1, 1)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Evaluate(ctx, dataset.NewLoader(ds, 2), &oneHotScorer{nClass: 2, preds: ds.truths})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Evaluate() error = %v, want context.Canceled", err)
	}
}

func TestEvaluate_Logging(t *testing.T) {
	ds := &memDataset{names: []string{"a", "b"}}
	for i := 0; i < 100; i++ {
		ds.truths = append(ds.truths, labels(1, 1))
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, err := Evaluate(context.Background(), dataset.NewLoader(ds, 2), &oneHotScorer{nClass: 2, preds: ds.truths},
		WithLogger(logger))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	for _, want := range []string{"done=100", "samples=100"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log missing %q:\n%s", want, buf.String())
		}
	}
}

func TestSaveVisualization(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viz_evaluate.png")
	if err := os.WriteFile(path, bytes.Repeat([]byte("stale"), 1000), 0o644); err != nil {
		t.Fatal(err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 5, 3))
	if err := SaveVisualization(path, img); err != nil {
		t.Fatalf("SaveVisualization() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	got, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decoding saved file: %v", err)
	}
	if got.Bounds() != img.Bounds() {
		t.Errorf("bounds = %v, want %v", got.Bounds(), img.Bounds())
	}

	if err := SaveVisualization(path, nil); err == nil {
		t.Error("expected error for nil image")
	}
}

// writeSplit creates an image set listing one id; New does not read images.
func writeSplit(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "VOC", "VOCdevkit", "VOC2012", "ImageSets", "Segmentation")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, Split+".txt"), []byte("2007_000033\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestNew_ModelNotFound(t *testing.T) {
	_, err := New("nonexistent/model.pb")
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got: %v", err)
	}
}

func TestNew_DatasetMissing(t *testing.T) {
	model := filepath.Join(t.TempDir(), "model.pb")
	if err := os.WriteFile(model, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(model, WithDatasetRoot(t.TempDir()))
	if !errors.Is(err, ErrDataset) {
		t.Errorf("expected ErrDataset, got: %v", err)
	}
}

func TestNew_CorruptCheckpoint(t *testing.T) {
	model := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(model, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(model, WithDatasetRoot(writeSplit(t)))
	if !errors.Is(err, ErrCheckpoint) || !errors.Is(err, checkpoint.ErrCorrupt) {
		t.Errorf("expected ErrCheckpoint wrapping ErrCorrupt, got: %v", err)
	}
}

func TestNew_GraphMissing(t *testing.T) {
	model := filepath.Join(t.TempDir(), "model.pb")
	ck := &checkpoint.Checkpoint{
		Format: checkpoint.FormatKeyed,
		State: checkpoint.State{
			"score_fr.bias": {Shape: []int64{21}, Data: make([]float32, 21)},
		},
	}
	if err := checkpoint.Save(model, ck); err != nil {
		t.Fatal(err)
	}

	_, err := New(model,
		WithDatasetRoot(writeSplit(t)),
		WithModelDir(t.TempDir()),
		WithDeconv(true))
	if !errors.Is(err, ErrInvalidModel) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrInvalidModel wrapping os.ErrNotExist, got: %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "fcn32s_deconv.onnx") {
		t.Errorf("error does not name the deconv graph: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	if cfg.workers != dataset.DefaultWorkers || cfg.maxViz != 9 || cfg.deconv {
		t.Errorf("defaultConfig() = %+v", cfg)
	}
	if !strings.HasSuffix(cfg.datasetRoot, filepath.Join("data", "datasets")) {
		t.Errorf("datasetRoot = %q", cfg.datasetRoot)
	}

	WithWorkers(-1)(&cfg)
	WithMaxVisualizations(0)(&cfg)
	WithLogger(nil)(&cfg)
	if cfg.workers != dataset.DefaultWorkers || cfg.maxViz != 9 || cfg.logger == nil {
		t.Errorf("invalid options changed config: %+v", cfg)
	}
}
