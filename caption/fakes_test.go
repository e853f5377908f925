package caption

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pdevine/tensor"

	"github.com/ollama/captioner/fs/checkpoint"
	"github.com/ollama/captioner/ml"
	"github.com/ollama/captioner/projector"
)

const (
	testBOS int32 = 1
	testEOS int32 = 2

	// byte b encodes to b+byteOffset, ids below it are special
	byteOffset = 10

	imageTokens = 4
	visionDim   = 3
	textDim     = 2
)

// fakeTokenizer maps every byte to its own id.
type fakeTokenizer struct{}

func (fakeTokenizer) Encode(s string, addSpecial bool) ([]int32, error) {
	var ids []int32
	if addSpecial {
		ids = append(ids, testBOS)
	}
	for _, b := range []byte(s) {
		ids = append(ids, int32(b)+byteOffset)
	}
	return ids, nil
}

func (fakeTokenizer) Decode(ids []int32, skipSpecial bool) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id < byteOffset {
			if !skipSpecial {
				fmt.Fprintf(&sb, "<%d>", id)
			}
			continue
		}
		sb.WriteByte(byte(id - byteOffset))
	}
	return sb.String(), nil
}

func encode(t *testing.T, s string, addSpecial bool) []int32 {
	t.Helper()
	ids, _ := fakeTokenizer{}.Encode(s, addSpecial)
	return ids
}

// fakeModel embeds id as [id, -id] and generates a scripted continuation.
type fakeModel struct {
	hidden   int
	generate func(ids []int32) []int32
}

func (m *fakeModel) EmbedTokens(ids []int32) (*tensor.Dense, error) {
	s := make([]float32, 0, len(ids)*m.hidden)
	for _, id := range ids {
		row := make([]float32, m.hidden)
		row[0] = float32(id)
		if m.hidden > 1 {
			row[1] = -float32(id)
		}
		s = append(s, row...)
	}
	return ml.FromFloatSlice(s, len(ids), m.hidden)
}

func (m *fakeModel) Generate(ctx context.Context, embeds *tensor.Dense, ids, mask []int32) ([]int32, error) {
	if ml.Rows(embeds) != len(ids) || len(ids) != len(mask) {
		return nil, fmt.Errorf("misaligned input: %d embeddings, %d ids, %d mask", ml.Rows(embeds), len(ids), len(mask))
	}

	out := append([]int32(nil), ids...)
	if m.generate != nil {
		out = append(out, m.generate(ids)...)
	}
	return out, nil
}

func (m *fakeModel) HiddenSize() int { return m.hidden }
func (m *fakeModel) BOS() int32      { return testBOS }
func (m *fakeModel) EOS() int32      { return testEOS }

// fakeVision returns layers hidden states where every value of layer i is i.
type fakeVision struct {
	hidden int
	layers int
}

func (v fakeVision) HiddenStates(ctx context.Context, pixels *tensor.Dense) ([]*tensor.Dense, error) {
	states := make([]*tensor.Dense, v.layers)
	for i := range states {
		s := make([]float32, imageTokens*v.hidden)
		for j := range s {
			s[j] = float32(i)
		}

		var err error
		if states[i], err = ml.FromFloatSlice(s, 1, imageTokens, v.hidden); err != nil {
			return nil, err
		}
	}
	return states, nil
}

func (v fakeVision) HiddenSize() int { return v.hidden }

// testProjector passes the first vision feature through GELU into the first
// text feature.
func testProjector(t *testing.T) *projector.Projector {
	t.Helper()
	p, err := projector.New(map[string]checkpoint.Tensor{
		"linear1.weight": {Name: "linear1.weight", Shape: []int{textDim, visionDim}, Data: []float32{1, 0, 0, 0, 0, 0}},
		"linear1.bias":   {Name: "linear1.bias", Shape: []int{textDim}, Data: make([]float32, textDim)},
		"linear2.weight": {Name: "linear2.weight", Shape: []int{textDim, textDim}, Data: []float32{1, 0, 0, 1}},
		"linear2.bias":   {Name: "linear2.bias", Shape: []int{textDim}, Data: make([]float32, textDim)},
	}, projector.Options{ImageTokens: imageTokens})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// testImage is a projected image block whose rows are all [0.5, 0.5].
func testImage(t *testing.T) *tensor.Dense {
	t.Helper()
	s := make([]float32, imageTokens*textDim)
	for i := range s {
		s[i] = 0.5
	}
	d, err := ml.FromFloatSlice(s, imageTokens, textDim)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func testPixels(t *testing.T, batch int) *tensor.Dense {
	t.Helper()
	d, err := ml.Zeros(batch, 3, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func testAdapter(t *testing.T, format string, generate func([]int32) []int32) *Adapter {
	t.Helper()
	a, err := New(Config{
		Vision:    fakeVision{hidden: visionDim, layers: 3},
		Model:     &fakeModel{hidden: textDim, generate: generate},
		Tokenizer: fakeTokenizer{},
		Projector: testProjector(t),
		Format:    format,
	})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// row returns position i of a composite's embeddings.
func row(c Composite, i int) []float32 {
	d := ml.Dim(c.Embeddings)
	return ml.Floats(c.Embeddings)[i*d : (i+1)*d]
}
