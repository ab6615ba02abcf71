package layers

import (
	"strings"
	"sync"

	"github.com/tsawler/go-fit/backend"
	"github.com/tsawler/go-fit/errs"
)

// Factory validates and builds one layer kind.
//
// Create assumes Validate returned true for cfg. Calling it with an invalid
// config is undefined; the model compiler always validates first.
type Factory struct {
	Validate func(cfg Config) bool
	Create   func(b backend.Backend, cfg Config, opts CreateOptions) backend.Layer

	// check explains why Validate fails.
	check func(cfg Config) error
	// defaults is a known-good config for the kind.
	defaults Config
}

var (
	registryOnce sync.Once
	registry     map[Kind]Factory
	kindOrder    []Kind
)

func factories() map[Kind]Factory {
	registryOnce.Do(func() {
		entries := []struct {
			kind    Kind
			factory Factory
		}{
			{Dense, newFactory(checkDense, createDense, DenseConfig(32, "relu", true))},
			{Dropout, newFactory(checkDropout, createDropout, DropoutConfig(0.2))},
			{BatchNorm, newFactory(checkBatchNorm, createBatchNorm, BatchNormConfig(-1, 0.99, 1e-3))},
			{Conv1D, newFactory(checkConv1D, createConv1D, Conv1DConfig(16, 3, 1, PaddingValid, "relu"))},
			{Activation, newFactory(checkActivation, createActivation, ActivationConfig("relu"))},
			{Flatten, newFactory(func(Config) error { return nil }, createFlatten, FlattenConfig())},
		}
		registry = make(map[Kind]Factory, len(entries))
		for _, e := range entries {
			registry[e.kind] = e.factory
			kindOrder = append(kindOrder, e.kind)
		}
	})
	return registry
}

func newFactory(check func(Config) error, create func(backend.Backend, Config, CreateOptions) backend.Layer, defaults Config) Factory {
	return Factory{
		Validate: func(cfg Config) bool { return check(cfg) == nil },
		Create:   create,
		check:    check,
		defaults: defaults,
	}
}

// Lookup returns the factory registered for kind.
func Lookup(kind Kind) (Factory, error) {
	f, ok := factories()[kind]
	if !ok {
		return Factory{}, &errs.UnsupportedKindError{Category: "layer", Kind: kind.String()}
	}
	return f, nil
}

// Kinds lists every registered kind in registration order.
func Kinds() []Kind {
	factories()
	out := make([]Kind, len(kindOrder))
	copy(out, kindOrder)
	return out
}

// DefaultConfig returns a valid config for kind.
func DefaultConfig(kind Kind) (Config, error) {
	f, err := Lookup(kind)
	if err != nil {
		return Config{}, err
	}
	return f.defaults, nil
}

// Validate reports whether cfg is valid for its kind.
func Validate(cfg Config) bool {
	f, err := Lookup(cfg.Kind)
	return err == nil && f.Validate(cfg)
}

// Check is Validate with a reason. It returns an *errs.UnsupportedKindError
// for unknown kinds and an *errs.ConfigValidationError (Index -1) otherwise.
func Check(cfg Config) error {
	f, err := Lookup(cfg.Kind)
	if err != nil {
		return err
	}
	return f.check(cfg)
}

// Create validates cfg and builds the backend layer.
func Create(b backend.Backend, cfg Config, opts CreateOptions) (backend.Layer, error) {
	f, err := Lookup(cfg.Kind)
	if err != nil {
		return nil, err
	}
	if err := f.check(cfg); err != nil {
		return nil, err
	}
	return f.Create(b, cfg, opts), nil
}

func checkActivationName(name string) error {
	if !validActivation(name) {
		return errs.NewConfigValidation("activation", "unsupported activation %q", name)
	}
	return nil
}

func checkDense(cfg Config) error {
	if cfg.Units <= 0 {
		return errs.NewConfigValidation("units", "must be positive, got %d", cfg.Units)
	}
	return checkActivationName(cfg.Activation)
}

func checkDropout(cfg Config) error {
	if cfg.Rate < 0 || cfg.Rate >= 1 {
		return errs.NewConfigValidation("rate", "must be in [0, 1), got %g", cfg.Rate)
	}
	return nil
}

func checkBatchNorm(cfg Config) error {
	if cfg.Axis == 0 || cfg.Axis < -1 {
		return errs.NewConfigValidation("axis", "must be -1 or a positive feature axis, got %d", cfg.Axis)
	}
	if cfg.Momentum < 0 || cfg.Momentum > 1 {
		return errs.NewConfigValidation("momentum", "must be in [0, 1], got %g", cfg.Momentum)
	}
	if cfg.Epsilon <= 0 {
		return errs.NewConfigValidation("epsilon", "must be positive, got %g", cfg.Epsilon)
	}
	return nil
}

func checkConv1D(cfg Config) error {
	switch {
	case cfg.Filters <= 0:
		return errs.NewConfigValidation("filters", "must be positive, got %d", cfg.Filters)
	case cfg.KernelSize <= 0:
		return errs.NewConfigValidation("kernel_size", "must be positive, got %d", cfg.KernelSize)
	case cfg.Strides <= 0:
		return errs.NewConfigValidation("strides", "must be positive, got %d", cfg.Strides)
	}
	switch strings.ToLower(cfg.Padding) {
	case "", PaddingValid, PaddingSame:
	default:
		return errs.NewConfigValidation("padding", "must be %q or %q, got %q", PaddingValid, PaddingSame, cfg.Padding)
	}
	return checkActivationName(cfg.Activation)
}

func checkActivation(cfg Config) error {
	if cfg.Activation == "" {
		return errs.NewConfigValidation("activation", "is required for an activation layer")
	}
	return checkActivationName(cfg.Activation)
}

func createDense(b backend.Backend, cfg Config, opts CreateOptions) backend.Layer {
	return b.Dense(backend.DenseOptions{
		Name:       opts.name(cfg),
		Units:      cfg.Units,
		Activation: cfg.Activation,
		UseBias:    cfg.UseBias,
		InputShape: opts.InputShape,
	})
}

func createDropout(b backend.Backend, cfg Config, opts CreateOptions) backend.Layer {
	return b.Dropout(backend.DropoutOptions{
		Name:       opts.name(cfg),
		Rate:       cfg.Rate,
		InputShape: opts.InputShape,
	})
}

func createBatchNorm(b backend.Backend, cfg Config, opts CreateOptions) backend.Layer {
	return b.BatchNormalization(backend.BatchNormOptions{
		Name:       opts.name(cfg),
		Axis:       cfg.Axis,
		Momentum:   cfg.Momentum,
		Epsilon:    cfg.Epsilon,
		InputShape: opts.InputShape,
	})
}

func createConv1D(b backend.Backend, cfg Config, opts CreateOptions) backend.Layer {
	padding := strings.ToLower(cfg.Padding)
	if padding == "" {
		padding = PaddingValid
	}
	return b.Conv1D(backend.Conv1DOptions{
		Name:       opts.name(cfg),
		Filters:    cfg.Filters,
		KernelSize: cfg.KernelSize,
		Strides:    cfg.Strides,
		Padding:    padding,
		Activation: cfg.Activation,
		InputShape: opts.InputShape,
	})
}

func createActivation(b backend.Backend, cfg Config, opts CreateOptions) backend.Layer {
	return b.Activation(backend.ActivationOptions{
		Name:       opts.name(cfg),
		Activation: cfg.Activation,
		InputShape: opts.InputShape,
	})
}

func createFlatten(b backend.Backend, cfg Config, opts CreateOptions) backend.Layer {
	return b.Flatten(backend.FlattenOptions{
		Name:       opts.name(cfg),
		InputShape: opts.InputShape,
	})
}
