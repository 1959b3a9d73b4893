package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func testState() State {
	return State{
		"conv1_1.weight": {Shape: []int64{2, 3}, Data: []float32{1, -2, 3.5, 0, 0.25, 6}},
		"conv1_1.bias":   {Shape: []int64{2}, Data: []float32{0.5, -0.5}},
	}
}

func TestFormatString(t *testing.T) {
	if FormatFlat.String() != "flat" || FormatKeyed.String() != "keyed" {
		t.Errorf("unexpected names %q %q", FormatFlat, FormatKeyed)
	}
	if Format(9).String() != "unknown" {
		t.Errorf("Format(9) = %q", Format(9))
	}
}

func TestEncodeDecode_Layouts(t *testing.T) {
	for _, enc := range []Encoding{EncodingBinary, EncodingJSON} {
		for _, format := range []Format{FormatFlat, FormatKeyed} {
			ck := &Checkpoint{Format: format, State: testState()}
			if format == FormatKeyed {
				ck.Meta = map[string]any{"epoch": 12.0, "arch": "FCN32s"}
			}

			data, err := Encode(ck, enc)
			if err != nil {
				t.Fatalf("Encode(%v, %d) error = %v", format, enc, err)
			}
			got, err := Decode(data, enc)
			if err != nil {
				t.Fatalf("Decode(%v, %d) error = %v", format, enc, err)
			}
			if got.Format != format {
				t.Errorf("Format = %v, want %v", got.Format, format)
			}
			if !reflect.DeepEqual(got.State, ck.State) {
				t.Errorf("State = %v, want %v", got.State, ck.State)
			}
			if format == FormatKeyed && got.Meta["arch"] != "FCN32s" {
				t.Errorf("Meta = %v", got.Meta)
			}
		}
	}
}

func TestKeyedFallbackMatchesFlat(t *testing.T) {
	inner := testState()

	keyedBytes, err := Encode(&Checkpoint{Format: FormatKeyed, State: inner}, EncodingBinary)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// Reading the wrapper as a flat state must fail.
	var root structpb.Struct
	if err := proto.Unmarshal(keyedBytes, &root); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, err := ParseState(&root); !errors.Is(err, ErrFormat) {
		t.Fatalf("ParseState(wrapper) error = %v, want ErrFormat", err)
	}
	if Detect(&root) != FormatKeyed {
		t.Fatalf("Detect() = %v, want keyed", Detect(&root))
	}

	keyed, err := Decode(keyedBytes, EncodingBinary)
	if err != nil {
		t.Fatalf("Decode(keyed) error = %v", err)
	}

	flatBytes, err := Encode(&Checkpoint{Format: FormatFlat, State: inner}, EncodingBinary)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	flat, err := Decode(flatBytes, EncodingBinary)
	if err != nil {
		t.Fatalf("Decode(flat) error = %v", err)
	}

	if !reflect.DeepEqual(keyed.State, flat.State) {
		t.Errorf("keyed state %v != flat state %v", keyed.State, flat.State)
	}
}

func TestDetect_TensorNamedLikeWrapperKey(t *testing.T) {
	ck := &Checkpoint{Format: FormatFlat, State: State{
		StateKey: {Shape: []int64{1}, Data: []float32{4}},
	}}
	data, err := Encode(ck, EncodingBinary)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(data, EncodingBinary)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Format != FormatFlat {
		t.Errorf("Format = %v, want flat", got.Format)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		enc     Encoding
		wantErr error
	}{
		{"garbage binary", "\xff\xff\xff", EncodingBinary, ErrCorrupt},
		{"garbage json", "{not json", EncodingJSON, ErrCorrupt},
		{"empty", "{}", EncodingJSON, ErrFormat},
		{"scalar field", `{"w": 3}`, EncodingJSON, ErrFormat},
		{"shape mismatch", `{"w": {"shape": [2, 2], "data": [1, 2, 3]}}`, EncodingJSON, ErrFormat},
		{"negative dim", `{"w": {"shape": [-1], "data": []}}`, EncodingJSON, ErrFormat},
		{"bad keyed tensor", `{"model_state_dict": {"w": {"shape": [1], "data": "!!"}}, "epoch": 1}`, EncodingJSON, ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data), tt.enc)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecode_JSONNumberList(t *testing.T) {
	data := `{"model_state_dict": {"score.bias": {"shape": [3], "data": [0.5, 1, -2]}}, "iteration": 100000}`
	ck, err := Decode([]byte(data), EncodingJSON)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ck.Format != FormatKeyed {
		t.Errorf("Format = %v, want keyed", ck.Format)
	}
	want := []float32{0.5, 1, -2}
	if !reflect.DeepEqual(ck.State["score.bias"].Data, want) {
		t.Errorf("Data = %v, want %v", ck.State["score.bias"].Data, want)
	}
	if ck.Meta["iteration"] != 100000.0 {
		t.Errorf("Meta = %v", ck.Meta)
	}
}

func TestLoadSave(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"model.pb", "model.json"} {
		path := filepath.Join(dir, name)
		ck := &Checkpoint{Format: FormatKeyed, State: testState(), Meta: map[string]any{}}
		if err := Save(path, ck); err != nil {
			t.Fatalf("Save(%s) error = %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) error = %v", name, err)
		}
		if !reflect.DeepEqual(got.State, ck.State) {
			t.Errorf("%s: state mismatch", name)
		}
	}
}

func TestLoad_MissingFileIsNotFormatError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.pb"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
	if errors.Is(err, ErrFormat) || errors.Is(err, ErrCorrupt) {
		t.Errorf("I/O error must not look like a layout error: %v", err)
	}
}

func TestEncode_InvalidTensor(t *testing.T) {
	ck := &Checkpoint{State: State{"w": {Shape: []int64{3}, Data: []float32{1}}}}
	if _, err := Encode(ck, EncodingBinary); !errors.Is(err, ErrFormat) {
		t.Errorf("Encode() error = %v, want ErrFormat", err)
	}
}

func TestStateNames(t *testing.T) {
	got := testState().Names()
	want := []string{"conv1_1.bias", "conv1_1.weight"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}
