package caption

import (
	"log/slog"
	"strings"

	"github.com/ollama/captioner/logutil"
)

// Extractor recovers caption text from generated ids.
type Extractor struct {
	Tokenizer Tokenizer
	EOS       int32

	// PostprocessPrompt and PostprocessText normalize the prompt and the
	// decoded text before they are compared. Nil leaves them unchanged.
	PostprocessPrompt func(string) string
	PostprocessText   func(string) string
}

// Extract turns the ids returned by generation into the caption.
// prefixLength is the Composite.PrefixLength of the same request.
func (e *Extractor) Extract(generated []int32, prefixLength int, req Request) (string, error) {
	ids := generated[min(max(prefixLength, 0), len(generated)):]
	if n := len(ids); n > 0 && ids[n-1] == e.EOS {
		ids = ids[:n-1]
	}

	decoded, err := e.Tokenizer.Decode(ids, true)
	if err != nil {
		return "", err
	}

	text := req.CaptionStart + decoded
	prompt := req.ImagePrompt
	if e.PostprocessPrompt != nil {
		prompt = e.PostprocessPrompt(prompt)
	}
	if e.PostprocessText != nil {
		text = e.PostprocessText(text)
	}

	var caption string
	switch {
	case strings.TrimSpace(prompt) != "" && strings.HasPrefix(text, prompt):
		// the prompt was echoed
		caption = text[len(prompt):]
	case strings.TrimSpace(req.CaptionStart) != "" && strings.HasPrefix(text, req.CaptionStart):
		caption = text
	default:
		caption = strings.TrimSpace(req.CaptionStart) + " " + strings.TrimSpace(text)
	}

	caption = strings.TrimSpace(caption)
	if req.RemoveTagSeparators {
		caption = removeSeparators(caption, req.TagSeparator)
	}

	slog.Debug("extracted caption", "prefix_length", prefixLength, "generated", len(generated), "new", len(ids))
	logutil.Trace("caption ids", "ids", logutil.IDs(ids), "caption", caption)
	return caption, nil
}

// removeSeparators replaces sep with a single space until none is left.
func removeSeparators(s, sep string) string {
	if sep == "" || sep == " " {
		return s
	}

	for strings.Contains(s, sep) {
		s = strings.ReplaceAll(s, sep, " ")
	}

	return s
}
