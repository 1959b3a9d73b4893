// Package inference runs FCN segmentation graphs with ONNX Runtime.
//
// Graphs are exported with their parameters as inputs, so the same graph can
// be evaluated with any checkpoint whose state matches it.
package inference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/jamesainslie/go-fcneval/checkpoint"
	"github.com/jamesainslie/go-fcneval/sample"
)

var (
	ortEnvOnce sync.Once
	ortEnvErr  error
)

// initORT initializes ONNX Runtime environment once.
func initORT() error {
	ortEnvOnce.Do(func() {
		ortEnvErr = ort.InitializeEnvironment()
	})
	return ortEnvErr
}

// SetLibraryPath points ONNX Runtime at a specific shared library. It must
// be called before the first model is created.
func SetLibraryPath(path string) {
	ort.SetSharedLibraryPath(path)
}

// Model scores images with an FCN graph and a loaded parameter state.
// It is safe for concurrent use; calls are serialized.
type Model struct {
	session *ort.DynamicAdvancedSession
	inputs  []ort.Value // index 0 is replaced by the image on every call
	classes int
	mu      sync.Mutex
	closed  bool
}

// NewModel loads the graph at graphPath, checks that it produces nClass
// scores per pixel, and binds state to its parameter inputs.
func NewModel(graphPath string, nClass int, state checkpoint.State) (*Model, error) {
	if _, err := os.Stat(graphPath); err != nil {
		return nil, fmt.Errorf("model graph: %w", err)
	}

	spec, err := ReadSpec(graphPath)
	if err != nil {
		return nil, err
	}
	if spec.Classes >= 0 && spec.Classes != int64(nClass) {
		return nil, fmt.Errorf("graph scores %d classes, dataset has %d", spec.Classes, nClass)
	}
	if err := ValidateState(spec, state); err != nil {
		return nil, err
	}

	m := &Model{classes: nClass, inputs: []ort.Value{nil}}
	inputNames := []string{ImageInput}
	for _, p := range spec.Params {
		t := state[p.Name]
		tensor, err := ort.NewTensor(ort.NewShape(t.Shape...), t.Data)
		if err != nil {
			_ = m.Close() // Partial model; original error takes precedence
			return nil, fmt.Errorf("creating tensor %q: %w", p.Name, err)
		}
		m.inputs = append(m.inputs, tensor)
		inputNames = append(inputNames, p.Name)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("creating session options: %w", err)
	}
	defer func() { _ = options.Destroy() }() // Cleanup error doesn't affect success

	m.session, err = ort.NewDynamicAdvancedSession(graphPath, inputNames, []string{ScoreOutput}, options)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return m, nil
}

// Classes returns the number of classes scored per pixel.
func (m *Model) Classes() int {
	return m.classes
}

// Score runs the graph on one image and returns its per-pixel class scores.
func (m *Model) Score(ctx context.Context, img sample.Image) (sample.ScoreMap, error) {
	// Check context before expensive operation
	select {
	case <-ctx.Done():
		return sample.ScoreMap{}, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return sample.ScoreMap{}, fmt.Errorf("model is closed")
	}

	imageTensor, err := ort.NewTensor(
		ort.NewShape(1, int64(img.Channels), int64(img.Height), int64(img.Width)),
		img.Data,
	)
	if err != nil {
		return sample.ScoreMap{}, fmt.Errorf("creating %s tensor: %w", ImageInput, err)
	}
	defer func() { _ = imageTensor.Destroy() }()

	inputs := append([]ort.Value{imageTensor}, m.inputs[1:]...)

	// Prepare output slice - nil entries will be allocated by Run
	outputs := []ort.Value{nil}

	if err := m.session.Run(inputs, outputs); err != nil {
		return sample.ScoreMap{}, fmt.Errorf("running inference: %w", err)
	}
	if outputs[0] == nil {
		return sample.ScoreMap{}, fmt.Errorf("no output produced")
	}
	defer func() { _ = outputs[0].Destroy() }()

	scores, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return sample.ScoreMap{}, fmt.Errorf("unexpected output tensor type")
	}

	shape := scores.GetShape()
	if len(shape) != 4 || shape[0] != 1 || shape[1] != int64(m.classes) {
		return sample.ScoreMap{}, fmt.Errorf("unexpected output shape %v", shape)
	}

	out := sample.ScoreMap{
		Classes: int(shape[1]),
		Height:  int(shape[2]),
		Width:   int(shape[3]),
	}
	out.Data = make([]float32, out.Classes*out.Height*out.Width)
	copy(out.Data, scores.GetData())
	return out, nil
}

// Close releases ONNX resources.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, v := range m.inputs[1:] {
		if err := v.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
