package sample

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestTemperature(t *testing.T) {
	got, err := Temperature(0.5).Apply([]float64{2, 4, 6})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{-8, -4, 0}, got); diff != "" {
		t.Errorf("logits mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []Temperature{0, -1, 3} {
		if _, err := bad.Apply([]float64{1}); err == nil {
			t.Errorf("expected error for temperature %v", bad)
		}
	}
}

func TestSoftmax(t *testing.T) {
	got := softmax([]float64{-3, -2, -1, 0})
	want := []float64{0.0320586, 0.0871443, 0.2368828, 0.6439142}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("probs mismatch (-want +got):\n%s", diff)
	}

	// large logits do not overflow
	got = softmax([]float64{1000, 1000})
	if diff := cmp.Diff([]float64{0.5, 0.5}, got); diff != "" {
		t.Errorf("probs mismatch (-want +got):\n%s", diff)
	}
}

func TestTopK(t *testing.T) {
	inf := math.Inf(-1)

	got, err := TopK(2).Apply([]float64{-3, -2, -1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{inf, inf, -1, 0}, got); diff != "" {
		t.Errorf("logits mismatch (-want +got):\n%s", diff)
	}

	got, err = TopK(5).Apply([]float64{-3, -2, -1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{-3, -2, -1, 0}, got); diff != "" {
		t.Errorf("k above length should keep everything (-want +got):\n%s", diff)
	}

	if _, err := TopK(0).Apply([]float64{1}); err == nil {
		t.Error("expected error for k = 0")
	}
}

func TestTopP(t *testing.T) {
	inf := math.Inf(-1)

	// probabilities are roughly 0.03, 0.09, 0.24, 0.64
	got, err := TopP(0.7).Apply([]float64{-3, -2, -1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{inf, inf, -1, 0}, got); diff != "" {
		t.Errorf("logits mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []TopP{0, 1} {
		if _, err := bad.Apply([]float64{1}); err == nil {
			t.Errorf("expected error for p = %v", bad)
		}
	}
}

func TestMinP(t *testing.T) {
	inf := math.Inf(-1)

	// threshold is 0.64 * 0.3 = 0.19
	got, err := MinP(0.3).Apply([]float64{-3, -2, -1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{inf, inf, -1, 0}, got); diff != "" {
		t.Errorf("logits mismatch (-want +got):\n%s", diff)
	}

	if _, err := MinP(1).Apply([]float64{1}); err == nil {
		t.Error("expected error for p = 1")
	}
}
