package errs

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestConfigValidationMessage(t *testing.T) {
	err := NewLayerValidation(2, "units", "must be positive, got %d", 0)
	if !strings.Contains(err.Error(), "layer 2") {
		t.Errorf("expected layer index in message, got %q", err.Error())
	}
	if !IsConfigValidation(err) {
		t.Error("expected IsConfigValidation to be true")
	}

	var cve *ConfigValidationError
	if !stderrors.As(errors.Wrap(err, "compile"), &cve) {
		t.Fatal("expected wrapped error to unwrap to ConfigValidationError")
	}
	if cve.Index != 2 {
		t.Errorf("expected index 2, got %d", cve.Index)
	}

	plain := NewConfigValidation("epochs", "must be positive")
	if strings.Contains(plain.Error(), "layer") {
		t.Errorf("non-layer error should not mention a layer: %q", plain.Error())
	}
}

func TestBackendTrainingErrorUnwraps(t *testing.T) {
	root := stderrors.New("shape mismatch")
	history := map[string][]float64{"loss": {0.9, 0.7}}
	err := NewBackendTraining("fit", 1, history, root)

	if !stderrors.Is(err, root) {
		t.Error("expected errors.Is to find the root cause")
	}
	if errors.Cause(err) != root {
		t.Error("expected pkg/errors Cause to return the root cause")
	}
	if !IsBackendTraining(err) {
		t.Error("expected IsBackendTraining to be true")
	}
	if len(err.History["loss"]) != 2 {
		t.Errorf("expected partial history to be kept, got %v", err.History)
	}
}

func TestKindAndDisposedPredicates(t *testing.T) {
	if !IsUnsupportedKind(&UnsupportedKindError{Category: "layer", Kind: "lstm"}) {
		t.Error("expected IsUnsupportedKind")
	}
	if !IsDisposed(NewDisposed("tensor")) {
		t.Error("expected IsDisposed")
	}
	if IsDisposed(ErrTrainerBusy) {
		t.Error("busy error must not be a disposed error")
	}
}
