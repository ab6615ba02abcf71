package training

import (
	"encoding/json"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/tsawler/go-fit/errs"
	"github.com/tsawler/go-fit/optimizer"
)

// DefaultMonitor is the metric early stopping and best-epoch tracking
// watch when Config.Monitor is empty.
const DefaultMonitor = "val_loss"

// DefaultOverfittingThreshold is the train/validation loss gap above which
// a run is flagged as overfitting.
const DefaultOverfittingThreshold = 0.1

// Config holds everything the trainer needs besides the graph and data.
type Config struct {
	Optimizer       string           `json:"optimizer"`
	LearningRate    float64          `json:"learning_rate"`
	OptimizerParams optimizer.Params `json:"optimizer_params,omitempty"`

	Loss    string   `json:"loss"`
	Metrics []string `json:"metrics,omitempty"`

	Epochs          int     `json:"epochs"`
	BatchSize       int     `json:"batch_size"`
	ValidationSplit float64 `json:"validation_split,omitempty"` // 0 disables validation
	Shuffle         bool    `json:"shuffle"`

	EarlyStoppingPatience int     `json:"early_stopping_patience,omitempty"` // 0 disables early stopping
	Monitor               string  `json:"monitor,omitempty"`
	MinDelta              float64 `json:"min_delta,omitempty"`
	RestoreBestWeights    bool    `json:"restore_best_weights,omitempty"`

	OverfittingThreshold float64 `json:"overfitting_threshold,omitempty"` // 0 selects DefaultOverfittingThreshold
	LogEvery             int     `json:"log_every,omitempty"`             // 0 disables periodic metric logging
}

// DefaultConfig returns a general purpose classification setup.
func DefaultConfig() Config {
	return Config{
		Optimizer:            string(optimizer.Adam),
		LearningRate:         0.001,
		Loss:                 "categoricalCrossentropy",
		Metrics:              []string{"accuracy"},
		Epochs:               50,
		BatchSize:            32,
		ValidationSplit:      0.2,
		Shuffle:              true,
		Monitor:              DefaultMonitor,
		OverfittingThreshold: DefaultOverfittingThreshold,
	}
}

// Validate checks every field and returns the first problem as an
// *errs.ConfigValidationError.
func (c Config) Validate() error {
	switch {
	case c.Optimizer == "":
		return errs.NewConfigValidation("optimizer", "is required")
	case !(c.LearningRate > 0 && c.LearningRate <= 1):
		return errs.NewConfigValidation("learning_rate", "must be in (0, 1], got %g", c.LearningRate)
	case c.Loss == "":
		return errs.NewConfigValidation("loss", "is required")
	case c.Epochs <= 0:
		return errs.NewConfigValidation("epochs", "must be positive, got %d", c.Epochs)
	case c.BatchSize <= 0:
		return errs.NewConfigValidation("batch_size", "must be positive, got %d", c.BatchSize)
	case c.ValidationSplit < 0 || c.ValidationSplit >= 1 || math.IsNaN(c.ValidationSplit):
		return errs.NewConfigValidation("validation_split", "must be 0 or in (0, 1), got %g", c.ValidationSplit)
	case c.EarlyStoppingPatience < 0:
		return errs.NewConfigValidation("early_stopping_patience", "must not be negative, got %d", c.EarlyStoppingPatience)
	case c.MinDelta < 0:
		return errs.NewConfigValidation("min_delta", "must not be negative, got %g", c.MinDelta)
	case c.OverfittingThreshold < 0:
		return errs.NewConfigValidation("overfitting_threshold", "must not be negative, got %g", c.OverfittingThreshold)
	case c.LogEvery < 0:
		return errs.NewConfigValidation("log_every", "must not be negative, got %d", c.LogEvery)
	}
	for i, m := range c.Metrics {
		if m == "" {
			return errs.NewConfigValidation("metrics", "entry %d is empty", i)
		}
	}
	return nil
}

// MonitorName returns Monitor or DefaultMonitor.
func (c Config) MonitorName() string {
	if c.Monitor == "" {
		return DefaultMonitor
	}
	return c.Monitor
}

func (c Config) overfittingThreshold() float64 {
	if c.OverfittingThreshold == 0 {
		return DefaultOverfittingThreshold
	}
	return c.OverfittingThreshold
}

func (c Config) optimizerParams() optimizer.Params {
	p := c.OptimizerParams
	p.LearningRate = c.LearningRate
	return p
}

// LoadConfig decodes a JSON config on top of DefaultConfig and validates
// the result. Unknown fields are rejected.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decoding training config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
