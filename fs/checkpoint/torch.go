package checkpoint

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
)

func readTorch(path string) ([]Tensor, error) {
	pt, err := pytorch.Load(path)
	if err != nil {
		return nil, err
	}

	var ts []Tensor
	add := func(k, v any) error {
		name, ok := k.(string)
		if !ok {
			return fmt.Errorf("%w: non string key %v", ErrUnsupportedFormat, k)
		}

		t, ok := v.(*pytorch.Tensor)
		if !ok {
			return fmt.Errorf("%w: %s is %T, not a tensor", ErrUnsupportedFormat, name, v)
		}

		data, err := torchData(t)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		ts = append(ts, Tensor{Name: name, Shape: slices.Clone(t.Size), Data: data})
		return nil
	}

	switch d := pt.(type) {
	case *types.Dict:
		for _, k := range d.Keys() {
			if err := add(k, d.MustGet(k)); err != nil {
				return nil, err
			}
		}
	case *types.OrderedDict:
		for e := d.List.Front(); e != nil; e = e.Next() {
			entry := e.Value.(*types.OrderedDictEntry)
			if err := add(entry.Key, entry.Value); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: top level object is %T", ErrUnsupportedFormat, pt)
	}

	slices.SortFunc(ts, func(a, b Tensor) int { return strings.Compare(a.Name, b.Name) })
	return ts, nil
}

// torchData returns the contiguous float32 view of t.
func torchData(t *pytorch.Tensor) ([]float32, error) {
	var f32s []float32
	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		f32s = s.Data
	case *pytorch.HalfStorage:
		f32s = s.Data
	case *pytorch.BFloat16Storage:
		f32s = s.Data
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedDType, s)
	}

	n, stride := 1, 1
	for i := len(t.Size) - 1; i >= 0; i-- {
		if t.Size[i] > 1 && t.Stride[i] != stride {
			return nil, fmt.Errorf("%w: non contiguous tensor with stride %v", ErrUnsupportedFormat, t.Stride)
		}
		stride *= t.Size[i]
		n *= t.Size[i]
	}

	if t.StorageOffset+n > len(f32s) {
		return nil, fmt.Errorf("%w: storage holds %d elements, need %d", ErrUnsupportedFormat, len(f32s), t.StorageOffset+n)
	}

	return f32s[t.StorageOffset : t.StorageOffset+n], nil
}
