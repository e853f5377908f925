// Package sample picks the next token from a vector of logits.
package sample

import (
	"errors"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/sampleuv"
)

var errNoLogits = errors.New("sample: no logits provided to sample")

type Sampler interface {
	Sample([]float32) (int32, error)
}

type greedy struct{}

func Greedy() Sampler {
	return greedy{}
}

func (greedy) Sample(logits []float32) (int32, error) {
	if len(logits) == 0 {
		return -1, errNoLogits
	}

	logits64 := make([]float64, len(logits))
	for i, v := range logits {
		logits64[i] = float64(v)
	}

	return int32(floats.MaxIdx(logits64)), nil
}

type weighted struct {
	src        rand.Source
	transforms []Transform
}

// Weighted draws from the softmax of the transformed logits. A non nil seed
// makes the draws reproducible; the sampler is then not safe for concurrent use.
func Weighted(seed *int64, transforms ...Transform) Sampler {
	var src rand.Source
	if seed != nil {
		src = rand.NewSource(uint64(*seed))
	}
	return weighted{src: src, transforms: transforms}
}

func (s weighted) Sample(logits []float32) (int32, error) {
	if len(logits) == 0 {
		return -1, errNoLogits
	}

	logits64 := make([]float64, len(logits))
	for i, v := range logits {
		logits64[i] = float64(v)
	}

	var err error
	for _, t := range s.transforms {
		logits64, err = t.Apply(logits64)
		if err != nil {
			return -1, err
		}
	}

	logitsCopy := make([]float64, 0, len(logits))
	indices := make([]int, 0, len(logits))
	for i, logit := range logits64 {
		if !math.IsInf(logit, -1) {
			logitsCopy = append(logitsCopy, logit)
			indices = append(indices, i)
		}
	}

	if len(logitsCopy) == 0 {
		return -1, errors.New("no valid logits found for weighed sampling")
	}

	probs := softmax(logitsCopy)
	w := sampleuv.NewWeighted(probs, s.src)
	if idx, ok := w.Take(); ok {
		return int32(indices[idx]), nil
	}
	return -1, errors.New("weighed sampler failed, no valid token found")
}

// New returns Greedy for a zero temperature and a Weighted sampler with
// the non zero options applied otherwise.
func New(temperature float64, topK int, topP, minP float64, seed *int64) Sampler {
	if temperature == 0 {
		return Greedy()
	}

	var transforms []Transform
	if topK > 0 {
		transforms = append(transforms, TopK(topK))
	}
	transforms = append(transforms, Temperature(temperature))
	if topP > 0 && topP < 1 {
		transforms = append(transforms, TopP(topP))
	}
	if minP > 0 && minP < 1 {
		transforms = append(transforms, MinP(minP))
	}

	return Weighted(seed, transforms...)
}
