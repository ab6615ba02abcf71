// Package model turns a declarative layer list into backend graphs.
package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tsawler/go-fit/backend"
	"github.com/tsawler/go-fit/errs"
	"github.com/tsawler/go-fit/layers"
)

// OutputLayerName is the name given to the synthesized output layer.
const OutputLayerName = "output"

// Definition describes a sequential model: the hidden layers, the
// per-sample input shape and the width of the output layer. The output
// layer is not listed; Compile appends it.
//
// A Definition is a value. Compile reads it and never stores backend
// handles on it, so one definition can be compiled any number of times.
type Definition struct {
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	InputShape  []int           `json:"input_shape"`
	OutputWidth int             `json:"output_width"`
	Layers      []layers.Config `json:"layers"`
}

// New creates a definition with a fresh ID. The shape and layer slices are
// copied.
func New(name string, inputShape []int, outputWidth int, hidden ...layers.Config) Definition {
	return Definition{
		ID:          uuid.NewString(),
		Name:        name,
		InputShape:  append([]int(nil), inputShape...),
		OutputWidth: outputWidth,
		Layers:      append([]layers.Config(nil), hidden...),
	}
}

// OutputActivation is sigmoid for a single output unit and softmax
// otherwise. The choice depends on width only, not on the loss.
func (d Definition) OutputActivation() string {
	if d.OutputWidth == 1 {
		return "sigmoid"
	}
	return "softmax"
}

// OutputConfig returns the synthesized output layer config.
func (d Definition) OutputConfig() layers.Config {
	return layers.DenseConfig(d.OutputWidth, d.OutputActivation(), true).WithName(OutputLayerName)
}

// Validate checks the input shape, the output width and every layer. Layer
// failures carry the offending index.
func (d Definition) Validate() error {
	if len(d.InputShape) == 0 {
		return errs.NewConfigValidation("input_shape", "must not be empty")
	}
	for i, dim := range d.InputShape {
		if dim <= 0 {
			return errs.NewConfigValidation("input_shape", "dimension %d must be positive, got %d", i, dim)
		}
	}
	if d.OutputWidth <= 0 {
		return errs.NewConfigValidation("output_width", "must be positive, got %d", d.OutputWidth)
	}
	// rank of the per-sample tensor flowing into each layer
	rank := len(d.InputShape)
	for i, cfg := range d.Layers {
		if err := layers.Check(cfg); err != nil {
			var cve *errs.ConfigValidationError
			if errors.As(err, &cve) {
				return errs.NewLayerValidation(i, cve.Field, "%s", cve.Reason)
			}
			return errs.NewLayerValidation(i, "kind", "%v", err)
		}
		switch cfg.Kind {
		case layers.BatchNorm:
			// Axis counts the batch dimension.
			if cfg.Axis != -1 && cfg.Axis != rank {
				return errs.NewLayerValidation(i, "axis", "only the last axis (-1 or %d) is supported, got %d", rank, cfg.Axis)
			}
		case layers.Dense, layers.Flatten:
			rank = 1
		}
	}
	return nil
}

// Compile builds a new graph on b. Nothing is created on the backend until
// every layer has validated.
//
// When the first layer is dense the input shape is declared on it;
// otherwise an explicit input layer precedes it. The output layer from
// OutputConfig is appended last.
func (d Definition) Compile(b backend.Backend) (backend.Graph, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	graph := b.NewSequential()
	add := func(layer backend.Layer) error {
		if err := graph.Add(layer); err != nil {
			graph.Dispose()
			return errors.Wrapf(err, "model %s: adding %s layer", d.label(), layer.Kind())
		}
		return nil
	}

	rest := d.Layers
	inputShape := append([]int(nil), d.InputShape...)
	if len(rest) > 0 && rest[0].Kind == layers.Dense {
		first, err := d.create(b, 0, rest[0], inputShape)
		if err != nil {
			graph.Dispose()
			return nil, err
		}
		if err := add(first); err != nil {
			return nil, err
		}
		rest = rest[1:]
	} else {
		if err := add(b.Input(inputShape)); err != nil {
			return nil, err
		}
	}

	offset := len(d.Layers) - len(rest)
	for i, cfg := range rest {
		layer, err := d.create(b, offset+i, cfg, nil)
		if err != nil {
			graph.Dispose()
			return nil, err
		}
		if err := add(layer); err != nil {
			return nil, err
		}
	}

	output, err := layers.Create(b, d.OutputConfig(), layers.CreateOptions{})
	if err != nil {
		graph.Dispose()
		return nil, err
	}
	if err := add(output); err != nil {
		return nil, err
	}
	return graph, nil
}

func (d Definition) create(b backend.Backend, index int, cfg layers.Config, inputShape []int) (backend.Layer, error) {
	f, err := layers.Lookup(cfg.Kind)
	if err != nil {
		return nil, errs.NewLayerValidation(index, "kind", "%v", err)
	}
	return f.Create(b, cfg, layers.CreateOptions{InputShape: inputShape}), nil
}

func (d Definition) label() string {
	if d.Name != "" {
		return d.Name
	}
	if d.ID != "" {
		return d.ID
	}
	return "(unnamed)"
}

// Summary renders the planned architecture, output layer included.
func (d Definition) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Model: %s\n", d.label())
	fmt.Fprintf(&sb, "Input shape: %v\n", d.InputShape)
	for i, cfg := range d.Layers {
		fmt.Fprintf(&sb, "  %2d  %s\n", i, cfg)
	}
	fmt.Fprintf(&sb, "  %2d  %s  <- output\n", len(d.Layers), d.OutputConfig())
	return sb.String()
}
