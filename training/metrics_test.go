package training

import (
	"math"
	"testing"
)

func TestLowerIsBetter(t *testing.T) {
	tests := map[string]bool{
		"loss":             true,
		"val_loss":         true,
		"meanSquaredError": true,
		"val_mae":          true,
		"mse":              true,
		"accuracy":         false,
		"val_accuracy":     false,
		"precision":        false,
	}
	for name, want := range tests {
		if got := LowerIsBetter(name); got != want {
			t.Errorf("LowerIsBetter(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestFinalMetrics(t *testing.T) {
	got := FinalMetrics(map[string][]float64{
		"loss":     {0.9, 0.5, 0.2},
		"accuracy": {0.5, 0.7, 0.9},
		"empty":    nil,
	})
	if len(got) != 2 || got["loss"] != 0.2 || got["accuracy"] != 0.9 {
		t.Errorf("FinalMetrics = %v", got)
	}
}

func TestBestEpoch(t *testing.T) {
	history := map[string][]float64{
		"val_loss":     {1.0, 0.6, 0.7, 0.55},
		"val_accuracy": {0.4, 0.9, 0.8, 0.85},
	}
	if e, ok := BestEpoch(history, "val_loss", 0); !ok || e != 3 {
		t.Errorf("val_loss best = %d %v", e, ok)
	}
	if e, _ := BestEpoch(history, "val_loss", 0.1); e != 1 {
		t.Errorf("val_loss best with min delta = %d, want 1", e)
	}
	if e, _ := BestEpoch(history, "val_accuracy", 0); e != 1 {
		t.Errorf("val_accuracy best = %d", e)
	}
	if _, ok := BestEpoch(history, "loss", 0); ok {
		t.Error("missing metric reported a best epoch")
	}
}

func TestAnalyzeOverfitting(t *testing.T) {
	d := AnalyzeOverfitting(map[string]float64{"loss": 0.05, "val_loss": 0.20}, 0.1)
	if !d.Available || !d.IsOverfitting || math.Abs(d.Gap-0.15) > 1e-12 {
		t.Errorf("diagnostics = %+v", d)
	}

	d = AnalyzeOverfitting(map[string]float64{"loss": 0.3, "val_loss": 0.35}, 0.1)
	if d.IsOverfitting {
		t.Errorf("small gap flagged: %+v", d)
	}

	d = AnalyzeOverfitting(map[string]float64{"loss": 0.3}, 0.1)
	if d.Available || d.IsOverfitting {
		t.Errorf("no validation loss: %+v", d)
	}
}
