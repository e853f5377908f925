package nn

import (
	"fmt"

	"github.com/pdevine/tensor"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/ollama/captioner/ml"
)

// Linear computes x·Wᵀ + b for a batch of row vectors. Weight is stored
// (out, in) the way PyTorch serializes nn.Linear.
type Linear struct {
	Weight *tensor.Dense
	Bias   *tensor.Dense
}

func (m *Linear) In() int  { return ml.Dim(m.Weight) }
func (m *Linear) Out() int { return ml.Rows(m.Weight) }

func (m *Linear) Forward(t *tensor.Dense) (*tensor.Dense, error) {
	if t.Dims() != 2 {
		return nil, fmt.Errorf("%w: linear input must be rank 2, got %v", ml.ErrShape, t.Shape())
	}

	n, in := t.Shape()[0], t.Shape()[1]
	if in != m.In() {
		return nil, fmt.Errorf("%w: linear input width %d, weight expects %d", ml.ErrShape, in, m.In())
	}

	out := m.Out()
	y := blas32.General{Rows: n, Cols: out, Stride: out, Data: make([]float32, n*out)}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: n, Cols: in, Stride: in, Data: ml.Floats(t)},
		blas32.General{Rows: out, Cols: in, Stride: in, Data: ml.Floats(m.Weight)},
		0, y)

	if m.Bias != nil {
		bias := blas32.Vector{N: out, Inc: 1, Data: ml.Floats(m.Bias)}
		for i := range n {
			blas32.Axpy(1, bias, blas32.Vector{N: out, Inc: 1, Data: y.Data[i*out : (i+1)*out]})
		}
	}

	return ml.FromFloatSlice(y.Data, n, out)
}
