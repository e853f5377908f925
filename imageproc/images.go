// Package imageproc turns encoded images into normalized pixel tensors.
package imageproc

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

var (
	ImageNetStandardMean = [3]float32{0.5, 0.5, 0.5}
	ImageNetStandardSTD  = [3]float32{0.5, 0.5, 0.5}
	ClipDefaultMean      = [3]float32{0.48145466, 0.4578275, 0.40821073}
	ClipDefaultSTD       = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

const (
	ResizeBilinear = iota
	ResizeNearestNeighbor
	ResizeApproxBilinear
	ResizeCatmullrom
)

var kernels = map[int]draw.Interpolator{
	ResizeBilinear:        draw.BiLinear,
	ResizeNearestNeighbor: draw.NearestNeighbor,
	ResizeApproxBilinear:  draw.ApproxBiLinear,
	ResizeCatmullrom:      draw.CatmullRom,
}

// Composite returns an image with the alpha channel removed by drawing over a white background.
func Composite(img image.Image) image.Image {
	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, dst.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Over)
	return dst
}

// Resize returns an image which has been scaled to a new size.
func Resize(img image.Image, newSize image.Point, method int) (image.Image, error) {
	kernel, ok := kernels[method]
	if !ok {
		return nil, fmt.Errorf("no resizing method %d", method)
	}

	dst := image.NewRGBA(image.Rect(0, 0, newSize.X, newSize.Y))
	kernel.Scale(dst, dst.Rect, img, img.Bounds(), draw.Over, nil)
	return dst, nil
}

// Normalize returns the rescaled r, g, b planes of img, one after another,
// each normalized with mean and std.
func Normalize(img image.Image, mean, std [3]float32) []float32 {
	bounds := img.Bounds()
	plane := bounds.Dx() * bounds.Dy()
	pixelVals := make([]float32, 3*plane)

	var i int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			pixelVals[i] = (float32(r>>8)/255.0 - mean[0]) / std[0]
			pixelVals[plane+i] = (float32(g>>8)/255.0 - mean[1]) / std[1]
			pixelVals[2*plane+i] = (float32(b>>8)/255.0 - mean[2]) / std[2]
			i++
		}
	}

	return pixelVals
}
