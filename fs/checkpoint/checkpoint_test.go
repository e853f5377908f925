package checkpoint

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/x448/float16"
)

func writeFile(t *testing.T, name string, fn func(*bytes.Buffer)) string {
	t.Helper()
	var b bytes.Buffer
	fn(&b)

	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, b.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func rawSafetensors(t *testing.T, header map[string]any, data []byte) func(*bytes.Buffer) {
	return func(b *bytes.Buffer) {
		bts, err := json.Marshal(header)
		if err != nil {
			t.Fatal(err)
		}
		binary.Write(b, binary.LittleEndian, int64(len(bts)))
		b.Write(bts)
		b.Write(data)
	}
}

func TestLoadSafetensors(t *testing.T) {
	ts := []Tensor{
		{Name: "linear2.bias", Shape: []int{2}, Data: []float32{0.25, -0.25}},
		{Name: "linear1.weight", Shape: []int{2, 3}, Data: []float32{1, 2, 3, 4, 5, 6}},
	}

	p := writeFile(t, "image_adapter.safetensors", func(b *bytes.Buffer) {
		if err := WriteSafetensors(b, ts); err != nil {
			t.Fatal(err)
		}
	})

	got, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"linear1.weight", "linear2.bias"}, Names(got)); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	for _, want := range ts {
		if diff := cmp.Diff(want, got[want.Name]); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", want.Name, diff)
		}
	}
}

func TestLoadSafetensorsHalfPrecision(t *testing.T) {
	var f16 bytes.Buffer
	for _, v := range []float32{1, -2, 0.5} {
		binary.Write(&f16, binary.LittleEndian, float16.Fromfloat32(v).Bits())
	}

	// bfloat16 keeps the high half of the float32 bits: 1.0 is 0x3f80
	bf16 := []byte{0x80, 0x3f, 0x00, 0xc0}

	header := map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
		"a":            map[string]any{"dtype": "F16", "shape": []int{3}, "data_offsets": []int{0, 6}},
		"b":            map[string]any{"dtype": "BF16", "shape": []int{1, 2}, "data_offsets": []int{6, 10}},
	}

	p := writeFile(t, "half.safetensors", rawSafetensors(t, header, append(f16.Bytes(), bf16...)))
	got, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]float32{1, -2, 0.5}, got["a"].Data); diff != "" {
		t.Errorf("f16 mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]float32{1, -2}, got["b"].Data); diff != "" {
		t.Errorf("bf16 mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("extension", func(t *testing.T) {
		p := writeFile(t, "adapter.gguf", func(b *bytes.Buffer) { b.WriteString("GGUF") })
		if _, err := Load(p); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}
	})

	t.Run("dtype", func(t *testing.T) {
		header := map[string]any{
			"ids": map[string]any{"dtype": "I64", "shape": []int{1}, "data_offsets": []int{0, 8}},
		}
		p := writeFile(t, "ids.safetensors", rawSafetensors(t, header, make([]byte, 8)))
		if _, err := Load(p); !errors.Is(err, ErrUnsupportedDType) {
			t.Errorf("expected ErrUnsupportedDType, got %v", err)
		}
	})

	t.Run("shape", func(t *testing.T) {
		header := map[string]any{
			"w": map[string]any{"dtype": "F32", "shape": []int{3}, "data_offsets": []int{0, 8}},
		}
		p := writeFile(t, "short.safetensors", rawSafetensors(t, header, make([]byte, 8)))
		if _, err := Load(p); err == nil {
			t.Error("expected shape error")
		}
	})

	t.Run("missing torch file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "image_adapter.pt")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestWriteSafetensorsRejectsBadShape(t *testing.T) {
	var b bytes.Buffer
	err := WriteSafetensors(&b, []Tensor{{Name: "x", Shape: []int{2, 2}, Data: []float32{1}}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestTensorDense(t *testing.T) {
	d, err := Tensor{Name: "w", Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}}.Dense()
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int{2, 2}, []int(d.Shape())); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}

	if _, err := (Tensor{Name: "w", Shape: []int{3}, Data: []float32{1}}).Dense(); err == nil {
		t.Error("expected error for mismatched data")
	}
}
