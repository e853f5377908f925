// Package logutil configures slog for the captioner and adds a TRACE level
// for per-token output.
package logutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pdevine/tensor"

	"github.com/ollama/captioner/format"
)

const LevelTrace slog.Level = -8

// NewLogger returns a text logger that names TRACE records and shortens
// source paths to the file name.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   true,
		ReplaceAttr: replaceAttr,
	}))
}

func replaceAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.LevelKey:
		if level, ok := attr.Value.Any().(slog.Level); ok && level == LevelTrace {
			attr.Value = slog.StringValue("TRACE")
		}
	case slog.SourceKey:
		if source, ok := attr.Value.Any().(*slog.Source); ok {
			source.File = filepath.Base(source.File)
		}
	}
	return attr
}

type skipKey struct{}

// Trace logs at TRACE with the caller of Trace as the source.
func Trace(msg string, args ...any) {
	TraceContext(context.WithValue(context.Background(), skipKey{}, 1), msg, args...)
}

func TraceContext(ctx context.Context, msg string, args ...any) {
	logger := slog.Default()
	if !logger.Enabled(ctx, LevelTrace) {
		return
	}

	skip, _ := ctx.Value(skipKey{}).(int)
	pc, _, _, _ := runtime.Caller(1 + skip)
	record := slog.NewRecord(time.Now(), LevelTrace, msg, pc)
	record.Add(args...)
	_ = logger.Handler().Handle(ctx, record)
}

// IDs defers formatting of a token id slice until the record is emitted.
type IDs []int32

func (ids IDs) LogValue() slog.Value {
	return slog.StringValue(fmt.Sprint([]int32(ids)))
}

// Tensor logs the shape of a dense tensor, e.g. shape=729x2048.
type Tensor struct{ *tensor.Dense }

func (t Tensor) LogValue() slog.Value {
	if t.Dense == nil {
		return slog.StringValue("<nil>")
	}
	return slog.StringValue(format.Shape(t.Shape()))
}
