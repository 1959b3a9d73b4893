package inference

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/jamesainslie/go-fcneval/checkpoint"
)

// Graph tensor names. Every other graph input is a parameter fed from the
// checkpoint state.
const (
	ImageInput  = "data"
	ScoreOutput = "score"
)

// ErrStateMismatch indicates a checkpoint state that does not fit the graph.
var ErrStateMismatch = errors.New("inference: state does not match graph parameters")

// GraphPath returns the FCN32s graph in dir for the chosen upsampling mode.
func GraphPath(dir string, deconv bool) string {
	if deconv {
		return filepath.Join(dir, "fcn32s_deconv.onnx")
	}
	return filepath.Join(dir, "fcn32s.onnx")
}

// Param is a parameter input of a graph.
type Param struct {
	Name  string
	Shape []int64 // -1 marks a dynamic dimension
}

// Spec describes what a graph expects besides the image.
type Spec struct {
	Params  []Param
	Classes int64 // channel count of the score output, -1 if dynamic
}

// ReadSpec inspects the inputs and outputs of the graph at path.
func ReadSpec(path string) (Spec, error) {
	if err := initORT(); err != nil {
		return Spec{}, fmt.Errorf("initializing ONNX runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return Spec{}, fmt.Errorf("reading graph info: %w", err)
	}
	return specFromInfo(inputs, outputs)
}

func specFromInfo(inputs, outputs []ort.InputOutputInfo) (Spec, error) {
	var spec Spec
	var hasImage bool
	for _, in := range inputs {
		if in.Name == ImageInput {
			hasImage = true
			continue
		}
		if in.DataType != ort.TensorElementDataTypeFloat {
			return Spec{}, fmt.Errorf("parameter %q has element type %v, want float", in.Name, in.DataType)
		}
		spec.Params = append(spec.Params, Param{Name: in.Name, Shape: append([]int64(nil), in.Dimensions...)})
	}
	if !hasImage {
		return Spec{}, fmt.Errorf("graph has no %q input", ImageInput)
	}

	spec.Classes = -1
	var hasScore bool
	for _, out := range outputs {
		if out.Name != ScoreOutput {
			continue
		}
		hasScore = true
		if len(out.Dimensions) != 4 {
			return Spec{}, fmt.Errorf("output %q has %d dimensions, want 4", ScoreOutput, len(out.Dimensions))
		}
		spec.Classes = out.Dimensions[1]
	}
	if !hasScore {
		return Spec{}, fmt.Errorf("graph has no %q output", ScoreOutput)
	}

	sort.Slice(spec.Params, func(i, j int) bool { return spec.Params[i].Name < spec.Params[j].Name })
	return spec, nil
}

// ValidateState checks that state holds exactly the parameters of spec with
// compatible shapes. Missing names, unexpected names and size mismatches are
// all reported in one error wrapping ErrStateMismatch.
func ValidateState(spec Spec, state checkpoint.State) error {
	var missing, mismatched []string
	known := make(map[string]bool, len(spec.Params))

	for _, p := range spec.Params {
		known[p.Name] = true
		t, ok := state[p.Name]
		if !ok {
			missing = append(missing, p.Name)
			continue
		}
		if !shapeFits(p.Shape, t.Shape) {
			mismatched = append(mismatched, fmt.Sprintf("%s: checkpoint %v, graph %v", p.Name, t.Shape, p.Shape))
		}
	}

	var unexpected []string
	for _, name := range state.Names() {
		if !known[name] {
			unexpected = append(unexpected, name)
		}
	}

	if len(missing)+len(unexpected)+len(mismatched) == 0 {
		return nil
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing keys: "+strings.Join(missing, ", "))
	}
	if len(unexpected) > 0 {
		parts = append(parts, "unexpected keys: "+strings.Join(unexpected, ", "))
	}
	if len(mismatched) > 0 {
		parts = append(parts, "size mismatch: "+strings.Join(mismatched, "; "))
	}
	return fmt.Errorf("%w: %s", ErrStateMismatch, strings.Join(parts, "; "))
}

func shapeFits(graph, tensor []int64) bool {
	if len(graph) != len(tensor) {
		return false
	}
	for i, d := range graph {
		if d >= 0 && d != tensor[i] {
			return false
		}
	}
	return true
}
