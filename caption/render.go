package caption

import (
	"path/filepath"
	"strings"
)

// PromptVars are the values RenderPrompt substitutes.
type PromptVars struct {
	// Tags already attached to the image.
	Tags []string
	// Path of the image file.
	Path string
}

// RenderPrompt replaces {tags}, {name} and {directory} in template. Other
// braces, {image} included, are kept.
func RenderPrompt(template string, vars PromptVars, tagSeparator string) string {
	var name, directory string
	if vars.Path != "" {
		name = strings.TrimSuffix(filepath.Base(vars.Path), filepath.Ext(vars.Path))
		directory = filepath.Base(filepath.Dir(vars.Path))
	}

	return strings.NewReplacer(
		"{tags}", strings.Join(vars.Tags, tagSeparator),
		"{name}", name,
		"{directory}", directory,
	).Replace(template)
}
