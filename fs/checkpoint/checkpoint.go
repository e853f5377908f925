// Package checkpoint reads flat name→tensor weight files as float32.
package checkpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pdevine/tensor"
	"golang.org/x/exp/maps"

	"github.com/ollama/captioner/ml"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported checkpoint format")
	ErrUnsupportedDType  = errors.New("unsupported tensor data type")
)

type Tensor struct {
	Name  string
	Shape []int
	Data  []float32
}

func (t Tensor) Elements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Dense wraps the tensor data without copying.
func (t Tensor) Dense() (*tensor.Dense, error) {
	d, err := ml.FromFloatSlice(t.Data, t.Shape...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name, err)
	}
	return d, nil
}

func (t Tensor) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", t.Name),
		slog.Any("shape", t.Shape),
	)
}

// Load reads every tensor in the checkpoint at path. The format is chosen
// from the file extension.
func Load(path string) (map[string]Tensor, error) {
	var ts []Tensor
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".safetensors":
		ts, err = readSafetensors(path)
	case ".pt", ".pth", ".bin":
		ts, err = readTorch(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}

	m := make(map[string]Tensor, len(ts))
	for _, t := range ts {
		if _, ok := m[t.Name]; ok {
			return nil, fmt.Errorf("duplicate tensor name '%s' was found in %s", t.Name, path)
		}
		m[t.Name] = t
	}

	slog.Debug("checkpoint loaded", "path", path, "tensors", len(m))
	return m, nil
}

// Names returns the tensor names in m in sorted order.
func Names(m map[string]Tensor) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
