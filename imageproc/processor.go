package imageproc

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/pdevine/tensor"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ollama/captioner/ml"
)

// Processor prepares images for a SigLIP style vision encoder.
type Processor struct {
	ImageSize int
	Mean, Std [3]float32
	Method    int
}

func NewProcessor() Processor {
	return Processor{
		ImageSize: 384,
		Mean:      ImageNetStandardMean,
		Std:       ImageNetStandardSTD,
		Method:    ResizeBilinear,
	}
}

// ProcessImage returns a (1, 3, ImageSize, ImageSize) pixel tensor.
func (p Processor) ProcessImage(img image.Image) (*tensor.Dense, error) {
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("empty image")
	}

	outputSize := image.Point{p.ImageSize, p.ImageSize}
	resized, err := Resize(Composite(img), outputSize, p.Method)
	if err != nil {
		return nil, err
	}

	return ml.FromFloatSlice(Normalize(resized, p.Mean, p.Std), 1, 3, p.ImageSize, p.ImageSize)
}

// Process decodes an encoded image and prepares it.
func (p Processor) Process(data []byte) (*tensor.Dense, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	t, err := p.ProcessImage(img)
	if err != nil {
		return nil, fmt.Errorf("%s image: %w", format, err)
	}

	return t, nil
}
