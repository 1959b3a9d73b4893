package fcneval

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jamesainslie/go-fcneval/dataset"
	"github.com/jamesainslie/go-fcneval/internal/viz"
)

// Option configures an Evaluator or a call to Evaluate.
type Option func(*config)

type config struct {
	deconv      bool
	datasetRoot string
	modelDir    string
	runtimeLib  string
	workers     int
	maxViz      int
	labelNames  []string
	logger      *slog.Logger
}

func defaultConfig() config {
	return config{
		datasetRoot: homePath("data", "datasets"),
		modelDir:    homePath("data", "models"),
		workers:     dataset.DefaultWorkers,
		maxViz:      viz.DefaultMaxTiles,
		logger:      slog.Default(),
	}
}

func homePath(elem ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(append([]string{home}, elem...)...)
}

// WithDeconv selects the graph with a learned upsampling layer
// (default: false, fixed bilinear upsampling).
func WithDeconv(deconv bool) Option {
	return func(c *config) {
		c.deconv = deconv
	}
}

// WithDatasetRoot sets the directory holding VOC/VOCdevkit
// (default: ~/data/datasets).
func WithDatasetRoot(dir string) Option {
	return func(c *config) {
		if dir != "" {
			c.datasetRoot = dir
		}
	}
}

// WithModelDir sets the directory holding the network graphs
// (default: ~/data/models).
func WithModelDir(dir string) Option {
	return func(c *config) {
		if dir != "" {
			c.modelDir = dir
		}
	}
}

// WithRuntimeLibrary sets the ONNX Runtime shared library path.
func WithRuntimeLibrary(path string) Option {
	return func(c *config) {
		c.runtimeLib = path
	}
}

// WithWorkers sets the number of samples decoded ahead (default: 4).
// Zero loads samples one at a time.
func WithWorkers(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.workers = n
		}
	}
}

// WithMaxVisualizations sets how many samples are drawn into the montage
// (default: 9).
func WithMaxVisualizations(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxViz = n
		}
	}
}

// WithLabelNames draws a legend of the given class names on each panel.
func WithLabelNames(names []string) Option {
	return func(c *config) {
		c.labelNames = names
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
