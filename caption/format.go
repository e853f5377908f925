package caption

import (
	"fmt"
	"strings"
)

const (
	// ImageMarker marks where the image goes in an instruct prompt.
	ImageMarker = "{image}"

	// UserHeader opens the user turn. Prompts without ImageMarker are split
	// right after it.
	UserHeader = "<|start_header_id|>user<|end_header_id|>"

	// ImageHeader announces the image when the prompt does not place it.
	ImageHeader = "Here is an image:\n"

	SystemPrompt = "You are a knowledgeable, efficient, and direct AI assistant. Provide concise answers, " +
		"focusing on the key information needed. Offer suggestions tactfully when appropriate to " +
		"improve outcomes. Engage in productive collaboration with the user."
)

// FormatPrompt wraps prompt in a Llama 3 system, user and open assistant turn.
func FormatPrompt(prompt string) string {
	return FormatPromptWithSystem(SystemPrompt, prompt)
}

func FormatPromptWithSystem(system, prompt string) string {
	var sb strings.Builder
	sb.WriteString("<|start_header_id|>system<|end_header_id|>\n")
	sb.WriteString(system)
	sb.WriteString("<|eot_id|>\n")
	sb.WriteString(UserHeader)
	sb.WriteString("\n")
	sb.WriteString(prompt)
	sb.WriteString("<|eot_id|>\n")
	sb.WriteString("<|start_header_id|>assistant<|end_header_id|>\n")
	return sb.String()
}

// SplitPromptAtImage returns the text before and after the image. The first
// {image} marker is used when present. Otherwise the prompt is cut after the
// first splitSequence and imageHeader is appended to the first half.
func SplitPromptAtImage(prompt, splitSequence, imageHeader string) (string, string, error) {
	if before, after, ok := strings.Cut(prompt, ImageMarker); ok {
		return before, after, nil
	}

	if splitSequence != "" {
		if before, after, ok := strings.Cut(prompt, splitSequence); ok {
			return before + splitSequence + imageHeader, after, nil
		}
	}

	return "", "", fmt.Errorf("%w: %q", ErrNoSplitPoint, splitSequence)
}
