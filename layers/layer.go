package layers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tsawler/go-fit/errs"
)

// Kind identifies a layer variant
type Kind int

const (
	Dense Kind = iota
	Dropout
	BatchNorm
	Conv1D
	Activation
	Flatten
)

var kindNames = map[Kind]string{
	Dense:      "dense",
	Dropout:    "dropout",
	BatchNorm:  "batchNormalization",
	Conv1D:     "conv1d",
	Activation: "activation",
	Flatten:    "flatten",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a kind name, ignoring case. Unknown names return false.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if strings.EqualFold(n, name) {
			return k, true
		}
	}
	return 0, false
}

// MarshalJSON encodes the kind by name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts the kind name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, ok := ParseKind(name)
	if !ok {
		return &errs.UnsupportedKindError{Category: "layer", Kind: name}
	}
	*k = parsed
	return nil
}

// Padding modes accepted by Conv1D.
const (
	PaddingValid = "valid"
	PaddingSame  = "same"
)

// Config is a declarative layer description. Kind selects which of the
// remaining fields apply:
//
//	Dense       Units, Activation, UseBias
//	Dropout     Rate
//	BatchNorm   Axis, Momentum, Epsilon
//	Conv1D      Filters, KernelSize, Strides, Padding, Activation
//	Activation  Activation
//	Flatten     (none)
//
// Configs are plain values; nothing in this module mutates one.
type Config struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name,omitempty"`

	Units      int    `json:"units,omitempty"`
	Activation string `json:"activation,omitempty"`
	UseBias    bool   `json:"use_bias,omitempty"`

	Rate float64 `json:"rate,omitempty"`

	Axis     int     `json:"axis,omitempty"`
	Momentum float64 `json:"momentum,omitempty"`
	Epsilon  float64 `json:"epsilon,omitempty"`

	Filters    int    `json:"filters,omitempty"`
	KernelSize int    `json:"kernel_size,omitempty"`
	Strides    int    `json:"strides,omitempty"`
	Padding    string `json:"padding,omitempty"`
}

// DenseConfig creates a dense layer config
func DenseConfig(units int, activation string, useBias bool) Config {
	return Config{Kind: Dense, Units: units, Activation: activation, UseBias: useBias}
}

// DropoutConfig creates a dropout layer config
func DropoutConfig(rate float64) Config {
	return Config{Kind: Dropout, Rate: rate}
}

// BatchNormConfig creates a batch normalization config. An axis of -1
// normalizes the last axis.
func BatchNormConfig(axis int, momentum, epsilon float64) Config {
	return Config{Kind: BatchNorm, Axis: axis, Momentum: momentum, Epsilon: epsilon}
}

// Conv1DConfig creates a temporal convolution config
func Conv1DConfig(filters, kernelSize, strides int, padding, activation string) Config {
	return Config{
		Kind:       Conv1D,
		Filters:    filters,
		KernelSize: kernelSize,
		Strides:    strides,
		Padding:    padding,
		Activation: activation,
	}
}

// ActivationConfig creates a standalone activation config
func ActivationConfig(activation string) Config {
	return Config{Kind: Activation, Activation: activation}
}

// FlattenConfig creates a flatten config
func FlattenConfig() Config {
	return Config{Kind: Flatten}
}

// WithName returns a copy of c carrying name.
func (c Config) WithName(name string) Config {
	c.Name = name
	return c
}

// String renders a one-line description used in model summaries.
func (c Config) String() string {
	switch c.Kind {
	case Dense:
		return fmt.Sprintf("dense(units=%d, activation=%s, bias=%t)", c.Units, activationOrLinear(c.Activation), c.UseBias)
	case Dropout:
		return fmt.Sprintf("dropout(rate=%g)", c.Rate)
	case BatchNorm:
		return fmt.Sprintf("batchNormalization(axis=%d, momentum=%g, epsilon=%g)", c.Axis, c.Momentum, c.Epsilon)
	case Conv1D:
		return fmt.Sprintf("conv1d(filters=%d, kernel=%d, strides=%d, padding=%s, activation=%s)",
			c.Filters, c.KernelSize, c.Strides, c.Padding, activationOrLinear(c.Activation))
	case Activation:
		return fmt.Sprintf("activation(%s)", activationOrLinear(c.Activation))
	case Flatten:
		return "flatten()"
	default:
		return c.Kind.String()
	}
}

// Activations lists the supported activation names. The empty string is
// accepted everywhere and means linear.
var Activations = []string{"linear", "relu", "sigmoid", "tanh", "softmax", "elu", "leakyRelu"}

func validActivation(name string) bool {
	if name == "" {
		return true
	}
	for _, a := range Activations {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

func activationOrLinear(name string) string {
	if name == "" {
		return "linear"
	}
	return name
}

// CreateOptions carries graph-position details into Factory.Create.
// InputShape is set only for the first layer of a graph.
type CreateOptions struct {
	Name       string
	InputShape []int
}

func (o CreateOptions) name(cfg Config) string {
	if o.Name != "" {
		return o.Name
	}
	return cfg.Name
}
