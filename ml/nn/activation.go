package nn

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/pdevine/tensor"

	"github.com/ollama/captioner/ml"
)

// GELU applies the exact (erf) Gaussian error linear unit element-wise and
// returns a new tensor of the same shape.
func GELU(t *tensor.Dense) (*tensor.Dense, error) {
	in := ml.Floats(t)
	out := make([]float32, len(in))
	for i, x := range in {
		out[i] = 0.5 * x * (1 + math32.Erf(x/math.Sqrt2))
	}

	return ml.FromFloatSlice(out, t.Shape()...)
}
