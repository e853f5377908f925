package checkpoint

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// testdata/*.pt are written by testdata/make_pt.py

func TestLoadTorch(t *testing.T) {
	got, err := Load(filepath.Join("testdata", "image_adapter.pt"))
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]Tensor{
		// shares storage with linear1.bias
		"linear1.weight": {Name: "linear1.weight", Shape: []int{2, 3}, Data: []float32{1, 0, 1, 0, 1, 0}},
		// storage offset 6
		"linear1.bias": {Name: "linear1.bias", Shape: []int{2}, Data: []float32{0, 0}},
		// float16
		"linear2.weight": {Name: "linear2.weight", Shape: []int{2, 2}, Data: []float32{1, 0, 0, 1}},
		// bfloat16
		"linear2.bias": {Name: "linear2.bias", Shape: []int{2}, Data: []float32{1, 1}},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tensors mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"linear1.bias", "linear1.weight", "linear2.bias", "linear2.weight"}, Names(got)); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTorchNonContiguous(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "transposed.pt"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestNames(t *testing.T) {
	m := map[string]Tensor{"b": {}, "c": {}, "a": {}}
	if diff := cmp.Diff([]string{"a", "b", "c"}, Names(m)); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	if got := Names(nil); len(got) != 0 {
		t.Errorf("expected no names, got %v", got)
	}
}
