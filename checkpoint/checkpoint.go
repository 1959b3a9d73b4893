// Package checkpoint reads and writes serialized model parameters.
//
// A checkpoint is a protobuf Struct in one of two layouts:
//
//   - Flat: every top-level field is a tensor.
//   - Keyed: the parameters live in a nested Struct under "model_state_dict";
//     other top-level fields (epoch, iteration, ...) are metadata.
//
// The layout is detected by inspecting the top level; decoding never guesses
// by trial and error. A tensor is a Struct with a "shape" list and a "data"
// field holding either a list of numbers or base64 little-endian float32.
package checkpoint

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// StateKey is the field under which the keyed layout stores parameters.
const StateKey = "model_state_dict"

var (
	// ErrCorrupt indicates the bytes are not a serialized checkpoint.
	ErrCorrupt = errors.New("checkpoint: corrupt data")

	// ErrFormat indicates a well-formed message that is not a valid state layout.
	ErrFormat = errors.New("checkpoint: invalid layout")
)

// Format identifies the checkpoint layout.
type Format int

const (
	FormatFlat Format = iota
	FormatKeyed
)

func (f Format) String() string {
	switch f {
	case FormatFlat:
		return "flat"
	case FormatKeyed:
		return "keyed"
	default:
		return "unknown"
	}
}

// Encoding selects the wire encoding of a checkpoint file.
type Encoding int

const (
	EncodingBinary Encoding = iota // protobuf wire format
	EncodingJSON                   // protobuf JSON mapping
)

// EncodingFor picks the encoding from a file extension: ".json" is JSON,
// anything else binary.
func EncodingFor(path string) Encoding {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return EncodingJSON
	}
	return EncodingBinary
}

// Tensor is a dense float32 parameter.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Len returns the element count implied by the shape.
func (t Tensor) Len() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// State maps parameter names to tensors.
type State map[string]Tensor

// Names returns the parameter names in sorted order.
func (s State) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Checkpoint is a decoded checkpoint.
type Checkpoint struct {
	Format Format
	State  State
	Meta   map[string]any // keyed layout only: fields other than StateKey
}

// Detect reports the layout of a decoded top-level Struct. A flat state that
// happens to contain a tensor named StateKey stays flat.
func Detect(root *structpb.Struct) Format {
	v, ok := root.GetFields()[StateKey]
	if !ok || v.GetStructValue() == nil || isTensor(v) {
		return FormatFlat
	}
	return FormatKeyed
}

func isTensor(v *structpb.Value) bool {
	fields := v.GetStructValue().GetFields()
	_, hasShape := fields["shape"]
	_, hasData := fields["data"]
	return hasShape && hasData
}

// Load reads and decodes the checkpoint at path. Read errors are not wrapped
// in ErrCorrupt or ErrFormat.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	return Decode(data, EncodingFor(path))
}

// Decode parses a checkpoint, detecting its layout.
func Decode(data []byte, enc Encoding) (*Checkpoint, error) {
	var root structpb.Struct
	var err error
	switch enc {
	case EncodingJSON:
		err = protojson.Unmarshal(data, &root)
	default:
		err = proto.Unmarshal(data, &root)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if len(root.GetFields()) == 0 {
		return nil, fmt.Errorf("%w: empty checkpoint", ErrFormat)
	}

	ck := &Checkpoint{Format: Detect(&root)}
	switch ck.Format {
	case FormatKeyed:
		ck.State, err = ParseState(root.GetFields()[StateKey].GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", StateKey, err)
		}
		ck.Meta = make(map[string]any)
		for k, v := range root.GetFields() {
			if k != StateKey {
				ck.Meta[k] = v.AsInterface()
			}
		}
	default:
		ck.State, err = ParseState(&root)
		if err != nil {
			return nil, err
		}
	}
	return ck, nil
}

// ParseState reads every field of s as a tensor.
func ParseState(s *structpb.Struct) (State, error) {
	state := make(State, len(s.GetFields()))
	for name, v := range s.GetFields() {
		t, err := parseTensor(v)
		if err != nil {
			return nil, fmt.Errorf("%w: tensor %q: %w", ErrFormat, name, err)
		}
		state[name] = t
	}
	return state, nil
}

func parseTensor(v *structpb.Value) (Tensor, error) {
	fields := v.GetStructValue().GetFields()
	if fields == nil {
		return Tensor{}, errors.New("not a tensor struct")
	}

	shapeVal, ok := fields["shape"]
	if !ok || shapeVal.GetListValue() == nil {
		return Tensor{}, errors.New("missing shape")
	}
	var t Tensor
	for _, d := range shapeVal.GetListValue().GetValues() {
		n, ok := d.GetKind().(*structpb.Value_NumberValue)
		if !ok || n.NumberValue < 0 || n.NumberValue != math.Trunc(n.NumberValue) {
			return Tensor{}, fmt.Errorf("invalid dimension %v", d.AsInterface())
		}
		t.Shape = append(t.Shape, int64(n.NumberValue))
	}

	dataVal, ok := fields["data"]
	if !ok {
		return Tensor{}, errors.New("missing data")
	}
	switch kind := dataVal.GetKind().(type) {
	case *structpb.Value_StringValue:
		raw, err := base64.StdEncoding.DecodeString(kind.StringValue)
		if err != nil {
			return Tensor{}, fmt.Errorf("decoding data: %w", err)
		}
		if len(raw)%4 != 0 {
			return Tensor{}, fmt.Errorf("data length %d is not a multiple of 4", len(raw))
		}
		t.Data = make([]float32, len(raw)/4)
		for i := range t.Data {
			t.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case *structpb.Value_ListValue:
		values := kind.ListValue.GetValues()
		t.Data = make([]float32, len(values))
		for i, x := range values {
			n, ok := x.GetKind().(*structpb.Value_NumberValue)
			if !ok {
				return Tensor{}, fmt.Errorf("element %d is not a number", i)
			}
			t.Data[i] = float32(n.NumberValue)
		}
	default:
		return Tensor{}, errors.New("data must be a list or a base64 string")
	}

	if int64(len(t.Data)) != t.Len() {
		return Tensor{}, fmt.Errorf("shape %v holds %d elements, data has %d", t.Shape, t.Len(), len(t.Data))
	}
	return t, nil
}
