package checkpoint

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Encode serializes ck in its own layout. Tensor data is written as base64.
func Encode(ck *Checkpoint, enc Encoding) ([]byte, error) {
	state, err := stateStruct(ck.State)
	if err != nil {
		return nil, err
	}

	root := state
	if ck.Format == FormatKeyed {
		root, err = structpb.NewStruct(ck.Meta)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata: %w", err)
		}
		root.Fields[StateKey] = structpb.NewStructValue(state)
	}

	if enc == EncodingJSON {
		return protojson.MarshalOptions{Indent: "  "}.Marshal(root)
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(root)
}

// Save encodes ck and writes it to path, picking the encoding from the
// extension.
func Save(path string, ck *Checkpoint) error {
	data, err := Encode(ck, EncodingFor(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	return nil
}

func stateStruct(state State) (*structpb.Struct, error) {
	out := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(state))}
	for name, t := range state {
		if int64(len(t.Data)) != t.Len() {
			return nil, fmt.Errorf("%w: tensor %q: shape %v holds %d elements, data has %d",
				ErrFormat, name, t.Shape, t.Len(), len(t.Data))
		}
		shape := make([]*structpb.Value, len(t.Shape))
		for i, d := range t.Shape {
			shape[i] = structpb.NewNumberValue(float64(d))
		}
		raw := make([]byte, 4*len(t.Data))
		for i, x := range t.Data {
			binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(x))
		}
		out.Fields[name] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"shape": structpb.NewListValue(&structpb.ListValue{Values: shape}),
			"data":  structpb.NewStringValue(base64.StdEncoding.EncodeToString(raw)),
		}})
	}
	return out, nil
}
