package tokenizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

var ErrUnsupportedModel = errors.New("unsupported tokenizer model")

type tokenizerJSON struct {
	Model struct {
		Type   string           `json:"type"`
		Vocab  map[string]int32 `json:"vocab"`
		Merges json.RawMessage  `json:"merges"`
	} `json:"model"`
	PreTokenizer json.RawMessage `json:"pre_tokenizer"`
	AddedTokens  []struct {
		ID      int32  `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

type tokenizerConfigJSON struct {
	BOSToken    any   `json:"bos_token"`
	EOSToken    any   `json:"eos_token"`
	AddBOSToken *bool `json:"add_bos_token"`
	AddEOSToken *bool `json:"add_eos_token"`
}

// Load reads a HuggingFace tokenizer.json. A tokenizer_config.json next to
// it, if present, supplies the BOS/EOS tokens and whether BOS is added.
func Load(path string) (*BytePairEncoding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config, err := os.ReadFile(filepath.Join(filepath.Dir(path), "tokenizer_config.json"))
	if errors.Is(err, os.ErrNotExist) {
		config = nil
	} else if err != nil {
		return nil, err
	}

	bpe, err := LoadBytes(data, config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	slog.Debug("tokenizer loaded", "path", path, "tokens", len(bpe.vocab.Values), "merges", len(bpe.vocab.Merges), "bos", bpe.BOS(), "eos", bpe.EOS())
	return bpe, nil
}

func LoadBytes(data, config []byte) (*BytePairEncoding, error) {
	var raw tokenizerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer: %w", err)
	}

	if raw.Model.Type != "BPE" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, raw.Model.Type)
	}

	merges, err := parseMerges(raw.Model.Merges)
	if err != nil {
		return nil, err
	}

	size := len(raw.Model.Vocab)
	for _, id := range raw.Model.Vocab {
		size = max(size, int(id)+1)
	}
	for _, tok := range raw.AddedTokens {
		size = max(size, int(tok.ID)+1)
	}

	vocab := &Vocabulary{
		Values: make([]string, size),
		Types:  make([]int32, size),
		Merges: merges,
	}

	for token, id := range raw.Model.Vocab {
		vocab.Values[id] = token
		vocab.Types[id] = TOKEN_TYPE_NORMAL
	}

	special := make(map[string]int32, len(raw.AddedTokens))
	for _, tok := range raw.AddedTokens {
		vocab.Values[tok.ID] = tok.Content
		vocab.Types[tok.ID] = TOKEN_TYPE_USER_DEFINED
		if tok.Special {
			vocab.Types[tok.ID] = TOKEN_TYPE_CONTROL
		}
		special[tok.Content] = tok.ID
	}

	if len(config) > 0 {
		var c tokenizerConfigJSON
		if err := json.Unmarshal(config, &c); err != nil {
			return nil, fmt.Errorf("failed to parse tokenizer config: %w", err)
		}

		if id, ok := special[tokenString(c.BOSToken)]; ok {
			vocab.BOS = []int32{id}
		}

		if id, ok := special[tokenString(c.EOSToken)]; ok {
			vocab.EOS = []int32{id}
		}

		// HuggingFace adds BOS unless told otherwise
		vocab.AddBOS = len(vocab.BOS) > 0
		if c.AddBOSToken != nil {
			vocab.AddBOS = *c.AddBOSToken
		}

		if c.AddEOSToken != nil {
			vocab.AddEOS = *c.AddEOSToken
		}
	}

	var pretokenizers []string
	if p := pretokenizer(raw.PreTokenizer); p != "" {
		pretokenizers = append(pretokenizers, p)
	}

	bpe := NewBytePairEncoding(vocab, pretokenizers...)
	return &bpe, nil
}

// parseMerges accepts both "a b" strings and ["a", "b"] pairs.
func parseMerges(data json.RawMessage) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var merges []string
	if err := json.Unmarshal(data, &merges); err == nil {
		return merges, nil
	}

	var pairs [][]string
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("failed to parse merges: %w", err)
	}

	merges = make([]string, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("failed to parse merges: expected merge pair of length 2, got %d", len(pair))
		}
		merges[i] = pair[0] + " " + pair[1]
	}

	return merges, nil
}

// pretokenizer returns the first Split regex of a single or Sequence
// pre_tokenizer, or "" for the default.
func pretokenizer(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}

	type split struct {
		Type    string `json:"type"`
		Pattern struct {
			Regex string `json:"Regex"`
		} `json:"pattern"`
	}

	var single split
	if err := json.Unmarshal(data, &single); err == nil && single.Pattern.Regex != "" {
		return single.Pattern.Regex
	}

	var seq struct {
		Type          string  `json:"type"`
		Pretokenizers []split `json:"pretokenizers"`
	}
	if err := json.Unmarshal(data, &seq); err == nil && seq.Type == "Sequence" {
		for _, pt := range seq.Pretokenizers {
			if pt.Type == "Split" && pt.Pattern.Regex != "" {
				return pt.Pattern.Regex
			}
		}
	}

	return ""
}

// tokenString reads a token written either as a string or as {"content": ...}.
func tokenString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case map[string]any:
		s, _ := v["content"].(string)
		return s
	}
	return ""
}
