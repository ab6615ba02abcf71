package training

import (
	"sort"
	"strings"

	"github.com/tsawler/go-fit/errs"
	"github.com/tsawler/go-fit/optimizer"
)

// FeedForwardPreset suits small fully connected networks.
func FeedForwardPreset() Config {
	cfg := DefaultConfig()
	cfg.EarlyStoppingPatience = 5
	return cfg
}

// ClassificationPreset suits multi-class classifiers with softmax outputs.
func ClassificationPreset() Config {
	cfg := DefaultConfig()
	cfg.Epochs = 100
	cfg.EarlyStoppingPatience = 10
	cfg.MinDelta = 1e-4
	return cfg
}

// RegressionPreset trains on mean squared error and reports mean absolute
// error.
func RegressionPreset() Config {
	cfg := DefaultConfig()
	cfg.Loss = "meanSquaredError"
	cfg.Metrics = []string{"mae"}
	cfg.Epochs = 100
	cfg.EarlyStoppingPatience = 10
	cfg.MinDelta = 1e-4
	return cfg
}

// ConvolutionalPreset uses a lower learning rate and larger batches.
func ConvolutionalPreset() Config {
	cfg := DefaultConfig()
	cfg.LearningRate = 0.0005
	cfg.Epochs = 30
	cfg.BatchSize = 64
	cfg.ValidationSplit = 0.15
	cfg.EarlyStoppingPatience = 5
	return cfg
}

// RecurrentPreset uses RMSProp, the usual choice for sequence models.
func RecurrentPreset() Config {
	cfg := DefaultConfig()
	cfg.Optimizer = string(optimizer.RMSProp)
	cfg.Epochs = 50
	cfg.EarlyStoppingPatience = 8
	return cfg
}

// TransferLearningPreset fine-tunes with slow momentum SGD and restores the
// best weights when it stops early.
func TransferLearningPreset() Config {
	cfg := DefaultConfig()
	cfg.Optimizer = string(optimizer.SGD)
	cfg.LearningRate = 0.0001
	cfg.OptimizerParams = optimizer.Params{Momentum: 0.9}
	cfg.Epochs = 20
	cfg.BatchSize = 16
	cfg.EarlyStoppingPatience = 3
	cfg.RestoreBestWeights = true
	return cfg
}

// QuickIterationPreset is for fast experiments: few epochs, high learning
// rate, no early stopping.
func QuickIterationPreset() Config {
	cfg := DefaultConfig()
	cfg.LearningRate = 0.01
	cfg.Epochs = 10
	cfg.BatchSize = 64
	cfg.ValidationSplit = 0.1
	return cfg
}

var presets = map[string]func() Config{
	"feedforward":    FeedForwardPreset,
	"classification": ClassificationPreset,
	"regression":     RegressionPreset,
	"convolutional":  ConvolutionalPreset,
	"recurrent":      RecurrentPreset,
	"transfer":       TransferLearningPreset,
	"quick":          QuickIterationPreset,
}

// PresetNames lists the names accepted by Preset.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns the preset for a model family name such as
// "classification" or "transfer".
func Preset(name string) (Config, error) {
	fn, ok := presets[strings.ToLower(name)]
	if !ok {
		return Config{}, &errs.UnsupportedKindError{Category: "preset", Kind: name}
	}
	return fn(), nil
}
