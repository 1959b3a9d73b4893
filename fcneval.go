package fcneval

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/go-fcneval/checkpoint"
	"github.com/jamesainslie/go-fcneval/dataset"
	"github.com/jamesainslie/go-fcneval/inference"
	"github.com/jamesainslie/go-fcneval/internal/metrics"
	"github.com/jamesainslie/go-fcneval/internal/viz"
	"github.com/jamesainslie/go-fcneval/sample"
)

const (
	// Split is the evaluated image set.
	Split = "seg11valid"

	// progressEvery is how often, in samples, progress is logged.
	progressEvery = 100
)

// Source yields labeled samples in a fixed order.
type Source interface {
	Len() int
	ClassNames() []string
	Each(ctx context.Context, fn func(sample.Sample) error) error
	Untransform(s sample.Sample) (image.Image, sample.LabelMap)
}

// Scorer produces per-pixel class scores for one image.
type Scorer interface {
	Score(ctx context.Context, img sample.Image) (sample.ScoreMap, error)
}

// Result is the outcome of one evaluation.
type Result struct {
	// Summary holds the mean scores as fractions; see Summary.Percent.
	Summary metrics.Summary

	// Visualization tiles the panels of the first samples, or is nil
	// when nothing was evaluated.
	Visualization *image.RGBA

	// Visualized is the number of panels in Visualization.
	Visualized int
}

// Evaluate scores every sample of src with model and averages the results.
// The number of classes is taken from src.
func Evaluate(ctx context.Context, src Source, model Scorer, opts ...Option) (*Result, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return evaluate(ctx, src, model, cfg, cfg.logger)
}

func evaluate(ctx context.Context, src Source, model Scorer, cfg config, logger *slog.Logger) (*Result, error) {
	nClass := len(src.ClassNames())
	if nClass == 0 {
		return nil, errors.New("source has no classes")
	}

	acc := metrics.NewAccumulator(nClass)
	collector := viz.NewCollector(cfg.maxViz, nClass, cfg.labelNames)
	total := src.Len()
	start := time.Now()

	err := src.Each(ctx, func(s sample.Sample) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		scores, err := model.Score(ctx, s.Image)
		if err != nil {
			return fmt.Errorf("scoring sample %d: %w", s.Index, err)
		}
		pred, err := sample.Argmax(scores)
		if err != nil {
			return fmt.Errorf("sample %d: %w", s.Index, err)
		}

		img, truth := src.Untransform(s)
		if !pred.SameSize(truth) {
			return fmt.Errorf("sample %d: prediction %dx%d, label %dx%d: %w",
				s.Index, pred.Width, pred.Height, truth.Width, truth.Height, metrics.ErrSizeMismatch)
		}

		if _, err := acc.Add(truth, pred); err != nil {
			return err
		}
		if !collector.Full() {
			if _, err := collector.Add(pred, truth, img); err != nil {
				return fmt.Errorf("visualizing sample %d: %w", s.Index, err)
			}
		}

		if n := acc.Len(); n%progressEvery == 0 {
			logger.Debug("evaluating", "done", n, "total", total)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Summary:    acc.Summary(),
		Visualized: collector.Len(),
	}
	if collector.Len() > 0 {
		res.Visualization = collector.Image()
	}

	logger.Info("evaluation finished",
		"samples", res.Summary.Samples,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// Evaluator evaluates one checkpoint on the VOC2011 seg11valid split.
type Evaluator struct {
	model  *inference.Model
	loader *dataset.Loader
	format checkpoint.Format
	cfg    config
	logger *slog.Logger
}

// New loads the checkpoint at modelFile, opens the dataset and builds the
// network graph selected by WithDeconv.
func New(modelFile string, opts ...Option) (*Evaluator, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger.With("run_id", uuid.NewString())

	// Check model file exists
	if _, err := os.Stat(modelFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelFile)
		}
		return nil, fmt.Errorf("checking model file: %w", err)
	}

	voc, err := dataset.NewVOC2011ClassSeg(cfg.datasetRoot, Split)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataset, err)
	}
	logger.Info("dataset opened", "split", voc.Split(), "samples", voc.Len())

	ck, err := checkpoint.Load(modelFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}
	logger.Info("checkpoint loaded", "format", ck.Format, "tensors", len(ck.State))

	if cfg.runtimeLib != "" {
		inference.SetLibraryPath(cfg.runtimeLib)
	}
	graph := inference.GraphPath(cfg.modelDir, cfg.deconv)
	model, err := inference.NewModel(graph, len(voc.ClassNames()), ck.State)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	logger.Info("model ready", "graph", graph, "deconv", cfg.deconv)

	return &Evaluator{
		model:  model,
		loader: dataset.NewLoader(voc, cfg.workers),
		format: ck.Format,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Format returns the layout the checkpoint was stored in.
func (e *Evaluator) Format() checkpoint.Format {
	return e.format
}

// Run evaluates the model over the whole split.
func (e *Evaluator) Run(ctx context.Context) (*Result, error) {
	return evaluate(ctx, e.loader, e.model, e.cfg, e.logger)
}

// Close releases all resources.
func (e *Evaluator) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}
