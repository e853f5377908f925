package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ollama/captioner/logutil"
)

var (
	// Set via CAPTION_DEBUG in the environment
	LogLevel slog.Level
	// Set via CAPTION_CHECKPOINT in the environment
	Checkpoint string
	// Set via CAPTION_TOKENIZER in the environment
	Tokenizer string
	// Set via CAPTION_PROMPT_FORMAT in the environment
	PromptFormat string
	// Set via CAPTION_VISION_LAYER in the environment
	VisionLayer int
	// Set via CAPTION_IMAGE_TOKENS in the environment
	ImageTokens int
	// Set via CAPTION_START in the environment
	CaptionStart string
	// Set via CAPTION_TAG_SEPARATOR in the environment
	TagSeparator string
	// Set via CAPTION_REMOVE_TAG_SEPARATORS in the environment
	RemoveTagSeparators bool
	// Set via CAPTION_MAX_NEW_TOKENS in the environment
	MaxNewTokens int
	// Set via CAPTION_TEMPERATURE in the environment
	Temperature float64
)

const (
	FormatBase     = "base"
	FormatInstruct = "instruct"
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"CAPTION_DEBUG":                 {"CAPTION_DEBUG", LogLevel, "Show additional debug information (e.g. CAPTION_DEBUG=1, CAPTION_DEBUG=2 for trace)"},
		"CAPTION_CHECKPOINT":            {"CAPTION_CHECKPOINT", Checkpoint, "Path to the image adapter checkpoint (.pt or .safetensors)"},
		"CAPTION_TOKENIZER":             {"CAPTION_TOKENIZER", Tokenizer, "Path to a tokenizer.json"},
		"CAPTION_PROMPT_FORMAT":         {"CAPTION_PROMPT_FORMAT", PromptFormat, "Prompt assembly strategy: base or instruct (default \"base\")"},
		"CAPTION_VISION_LAYER":          {"CAPTION_VISION_LAYER", VisionLayer, "Vision hidden layer fed to the projector, negative counts from the end (default -2)"},
		"CAPTION_IMAGE_TOKENS":          {"CAPTION_IMAGE_TOKENS", ImageTokens, "Expected image embedding length, 0 disables the check (default 729)"},
		"CAPTION_START":                 {"CAPTION_START", CaptionStart, "Text every caption is primed to start with"},
		"CAPTION_TAG_SEPARATOR":         {"CAPTION_TAG_SEPARATOR", TagSeparator, "Separator between tags (default \", \")"},
		"CAPTION_REMOVE_TAG_SEPARATORS": {"CAPTION_REMOVE_TAG_SEPARATORS", RemoveTagSeparators, "Replace tag separators in captions with spaces"},
		"CAPTION_MAX_NEW_TOKENS":        {"CAPTION_MAX_NEW_TOKENS", MaxNewTokens, "Maximum number of generated tokens (default 300)"},
		"CAPTION_TEMPERATURE":           {"CAPTION_TEMPERATURE", Temperature, "Sampling temperature, 0 selects greedy decoding"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	LogLevel = slog.LevelInfo
	if debug := clean("CAPTION_DEBUG"); debug != "" {
		if i, err := strconv.ParseInt(debug, 10, 64); err == nil {
			switch {
			case i >= 2:
				LogLevel = logutil.LevelTrace
			case i == 1:
				LogLevel = slog.LevelDebug
			}
		} else if b, err := strconv.ParseBool(debug); err == nil {
			if b {
				LogLevel = slog.LevelDebug
			}
		} else {
			LogLevel = slog.LevelDebug
		}
	}

	Checkpoint = clean("CAPTION_CHECKPOINT")
	Tokenizer = clean("CAPTION_TOKENIZER")

	PromptFormat = FormatBase
	if f := strings.ToLower(clean("CAPTION_PROMPT_FORMAT")); f != "" {
		switch f {
		case FormatBase, FormatInstruct:
			PromptFormat = f
		default:
			slog.Error("invalid setting, ignoring", "CAPTION_PROMPT_FORMAT", f)
		}
	}

	VisionLayer = -2
	if v := clean("CAPTION_VISION_LAYER"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			slog.Error("invalid setting, ignoring", "CAPTION_VISION_LAYER", v, "error", err)
		} else {
			VisionLayer = i
		}
	}

	ImageTokens = 729
	if v := clean("CAPTION_IMAGE_TOKENS"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil || i < 0 {
			slog.Error("invalid setting must be zero or greater", "CAPTION_IMAGE_TOKENS", v, "error", err)
		} else {
			ImageTokens = i
		}
	}

	// caption start and separators are used verbatim, surrounding spaces are significant
	CaptionStart = os.Getenv("CAPTION_START")

	TagSeparator = ", "
	if v, ok := os.LookupEnv("CAPTION_TAG_SEPARATOR"); ok && v != "" {
		TagSeparator = v
	}

	RemoveTagSeparators = false
	if v := clean("CAPTION_REMOVE_TAG_SEPARATORS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Error("invalid setting, ignoring", "CAPTION_REMOVE_TAG_SEPARATORS", v, "error", err)
		} else {
			RemoveTagSeparators = b
		}
	}

	MaxNewTokens = 300
	if v := clean("CAPTION_MAX_NEW_TOKENS"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil || i <= 0 {
			slog.Error("invalid setting must be greater than zero", "CAPTION_MAX_NEW_TOKENS", v, "error", err)
		} else {
			MaxNewTokens = i
		}
	}

	Temperature = 0
	if v := clean("CAPTION_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			slog.Error("invalid setting must be zero or greater", "CAPTION_TEMPERATURE", v, "error", err)
		} else {
			Temperature = f
		}
	}
}
