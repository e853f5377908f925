package runner

import (
	"context"
	"testing"

	"github.com/pdevine/tensor"

	"github.com/ollama/captioner/caption"
	"github.com/ollama/captioner/fs/checkpoint"
	"github.com/ollama/captioner/ml"
	"github.com/ollama/captioner/projector"
)

const (
	captionBOS int32 = 1
	captionEOS int32 = 2
	byteOffset       = 10
)

// byteTokenizer maps byte b to id b+byteOffset.
type byteTokenizer struct{}

func (byteTokenizer) Encode(s string, addSpecial bool) ([]int32, error) {
	var ids []int32
	if addSpecial {
		ids = append(ids, captionBOS)
	}
	for _, b := range []byte(s) {
		ids = append(ids, int32(b)+byteOffset)
	}
	return ids, nil
}

func (byteTokenizer) Decode(ids []int32, skipSpecial bool) (string, error) {
	var b []byte
	for _, id := range ids {
		if id >= byteOffset {
			b = append(b, byte(id-byteOffset))
		}
	}
	return string(b), nil
}

type constantVision struct{}

func (constantVision) HiddenStates(_ context.Context, _ *tensor.Dense) ([]*tensor.Dense, error) {
	states := make([]*tensor.Dense, 3)
	for i := range states {
		var err error
		if states[i], err = ml.Zeros(1, 2, 3); err != nil {
			return nil, err
		}
	}
	return states, nil
}

func (constantVision) HiddenSize() int { return 3 }

func TestGeneratorCaptions(t *testing.T) {
	p, err := projector.New(map[string]checkpoint.Tensor{
		"linear1.weight": {Name: "linear1.weight", Shape: []int{2, 3}, Data: make([]float32, 6)},
		"linear1.bias":   {Name: "linear1.bias", Shape: []int{2}, Data: make([]float32, 2)},
		"linear2.weight": {Name: "linear2.weight", Shape: []int{2, 2}, Data: make([]float32, 4)},
		"linear2.bias":   {Name: "linear2.bias", Shape: []int{2}, Data: make([]float32, 2)},
	}, projector.Options{ImageTokens: 2})
	if err != nil {
		t.Fatal(err)
	}

	script, _ := byteTokenizer{}.Encode(" a red barn.", false)
	f := &scriptForwarder{script: append(script, captionEOS)}

	a, err := caption.New(caption.Config{
		Vision:    constantVision{},
		Model:     &Generator{Forwarder: f, BOSToken: captionBOS, EOSToken: captionEOS, MaxNewTokens: 64},
		Tokenizer: byteTokenizer{},
		Projector: p,
	})
	if err != nil {
		t.Fatal(err)
	}

	pixels, err := ml.Zeros(1, 3, 4, 4)
	if err != nil {
		t.Fatal(err)
	}

	res, err := a.Caption(t.Context(), pixels, caption.Request{ImagePrompt: "Describe.", CaptionStart: "A photo of"})
	if err != nil {
		t.Fatal(err)
	}

	if res.Caption != "A photo of a red barn." {
		t.Errorf("got %q", res.Caption)
	}

	// bos, two image positions and the tokenized prompt
	prompt, _ := byteTokenizer{}.Encode("Describe. A photo of", true)
	if want := 1 + 2 + len(prompt); res.PrefixLength != want {
		t.Errorf("prefix length %d, want %d", res.PrefixLength, want)
	}

	if got, want := len(res.Generated)-res.PrefixLength, len(script)+1; got != want {
		t.Errorf("generated %d tokens, want %d", got, want)
	}
}
