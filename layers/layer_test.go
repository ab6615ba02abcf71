package layers_test

import (
	"encoding/json"
	"testing"

	"github.com/tsawler/go-fit/cpu"
	"github.com/tsawler/go-fit/errs"
	"github.com/tsawler/go-fit/layers"
)

func TestDefaultConfigsValidateAndCreate(t *testing.T) {
	b := cpu.New(cpu.WithSeed(1))
	for _, kind := range layers.Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			cfg, err := layers.DefaultConfig(kind)
			if err != nil {
				t.Fatalf("DefaultConfig: %v", err)
			}
			f, err := layers.Lookup(kind)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if !f.Validate(cfg) {
				t.Fatalf("default config %v does not validate: %v", cfg, layers.Check(cfg))
			}
			layer := f.Create(b, cfg, layers.CreateOptions{Name: "probe"})
			if layer == nil {
				t.Fatal("Create returned nil")
			}
			if layer.Name() != "probe" {
				t.Errorf("expected name probe, got %q", layer.Name())
			}
			if layer.Kind() != kind.String() {
				t.Errorf("expected backend kind %q, got %q", kind.String(), layer.Kind())
			}
		})
	}
}

func TestInvalidConfigsAreRejected(t *testing.T) {
	tests := []struct {
		name  string
		cfg   layers.Config
		field string
	}{
		{"zero units", layers.DenseConfig(0, "relu", true), "units"},
		{"negative units", layers.DenseConfig(-4, "relu", true), "units"},
		{"unknown activation", layers.DenseConfig(4, "swish", true), "activation"},
		{"negative dropout", layers.DropoutConfig(-0.1), "rate"},
		{"dropout of one", layers.DropoutConfig(1), "rate"},
		{"momentum above one", layers.BatchNormConfig(-1, 1.5, 1e-3), "momentum"},
		{"zero epsilon", layers.BatchNormConfig(-1, 0.9, 0), "epsilon"},
		{"batch axis", layers.BatchNormConfig(0, 0.9, 1e-3), "axis"},
		{"axis below -1", layers.BatchNormConfig(-2, 0.9, 1e-3), "axis"},
		{"zero filters", layers.Conv1DConfig(0, 3, 1, "valid", "relu"), "filters"},
		{"zero kernel", layers.Conv1DConfig(4, 0, 1, "valid", "relu"), "kernel_size"},
		{"zero strides", layers.Conv1DConfig(4, 3, 0, "valid", "relu"), "strides"},
		{"bad padding", layers.Conv1DConfig(4, 3, 1, "causal", "relu"), "padding"},
		{"empty activation layer", layers.ActivationConfig(""), "activation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if layers.Validate(tt.cfg) {
				t.Fatalf("expected %v to be invalid", tt.cfg)
			}
			err := layers.Check(tt.cfg)
			cve, ok := err.(*errs.ConfigValidationError)
			if !ok {
				t.Fatalf("expected *errs.ConfigValidationError, got %T (%v)", err, err)
			}
			if cve.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, cve.Field)
			}
		})
	}
}

func TestBoundaryConfigsAreAccepted(t *testing.T) {
	valid := []layers.Config{
		layers.DropoutConfig(0),
		layers.DropoutConfig(0.999),
		layers.BatchNormConfig(-1, 0, 1e-5),
		layers.BatchNormConfig(-1, 1, 1e-5),
		layers.DenseConfig(1, "", false),
		layers.Conv1DConfig(1, 1, 1, "", ""),
		layers.Conv1DConfig(2, 3, 2, "SAME", "leakyRelu"),
	}
	for _, cfg := range valid {
		if err := layers.Check(cfg); err != nil {
			t.Errorf("%v: unexpected error %v", cfg, err)
		}
	}
}

func TestUnknownKind(t *testing.T) {
	_, err := layers.Lookup(layers.Kind(99))
	if !errs.IsUnsupportedKind(err) {
		t.Fatalf("expected UnsupportedKindError, got %v", err)
	}
	if uk := err.(*errs.UnsupportedKindError); uk.Kind != "Kind(99)" || uk.Category != "layer" {
		t.Errorf("unexpected error details: %+v", uk)
	}
	if layers.Validate(layers.Config{Kind: layers.Kind(99)}) {
		t.Error("unknown kind validated")
	}
	if _, err := layers.DefaultConfig(layers.Kind(99)); err == nil {
		t.Error("expected DefaultConfig to fail for an unknown kind")
	}
}

func TestKindsAreStable(t *testing.T) {
	want := []layers.Kind{layers.Dense, layers.Dropout, layers.BatchNorm, layers.Conv1D, layers.Activation, layers.Flatten}
	got := layers.Kinds()
	if len(got) != len(want) {
		t.Fatalf("expected %d kinds, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("kind %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	got[0] = layers.Flatten
	if layers.Kinds()[0] != layers.Dense {
		t.Error("Kinds exposed the registry order slice")
	}
}

func TestConfigJSONUsesKindNames(t *testing.T) {
	in := []byte(`{"kind":"batchNormalization","axis":-1,"momentum":0.9,"epsilon":0.001}`)
	var cfg layers.Config
	if err := json.Unmarshal(in, &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.Kind != layers.BatchNorm || cfg.Axis != -1 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	err := json.Unmarshal([]byte(`{"kind":"lstm"}`), &cfg)
	if !errs.IsUnsupportedKind(err) {
		t.Fatalf("expected UnsupportedKindError for an unknown kind name, got %v", err)
	}
	if uk := err.(*errs.UnsupportedKindError); uk.Kind != "lstm" || uk.Category != "layer" {
		t.Errorf("unexpected error details: %+v", uk)
	}
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	b := cpu.New()
	if _, err := layers.Create(b, layers.DenseConfig(0, "", true), layers.CreateOptions{}); !errs.IsConfigValidation(err) {
		t.Fatalf("expected ConfigValidationError, got %v", err)
	}
	layer, err := layers.Create(b, layers.DenseConfig(3, "tanh", true).WithName("hidden"), layers.CreateOptions{InputShape: []int{2}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if layer.Name() != "hidden" {
		t.Errorf("expected config name to be used, got %q", layer.Name())
	}
}
