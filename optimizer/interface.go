// Package optimizer maps an optimizer kind and its hyperparameters to a
// backend optimizer instance.
package optimizer

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tsawler/go-fit/backend"
	"github.com/tsawler/go-fit/errs"
)

// Kind names an optimizer
type Kind string

const (
	Adam     Kind = "adam"
	SGD      Kind = "sgd"
	RMSProp  Kind = "rmsprop"
	AdaGrad  Kind = "adagrad"
	AdaDelta Kind = "adadelta"
)

// FallbackKind is used when an unknown kind is requested.
const FallbackKind = Adam

// Kinds lists the supported optimizers.
func Kinds() []Kind {
	return []Kind{Adam, SGD, RMSProp, AdaGrad, AdaDelta}
}

// ParseKind normalizes name ("Adam", "rms_prop", ...) to a Kind.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(name))
	for _, k := range Kinds() {
		if string(k) == n {
			return k, nil
		}
	}
	return "", &errs.UnsupportedKindError{Category: "optimizer", Kind: name}
}

// Params carries the learning rate and the hyperparameters any optimizer
// may use. Zero fields take the per-optimizer defaults, so a hyperparameter
// cannot be set to exactly zero through Params: Beta1, Beta2, Epsilon, Rho
// and LearningRate of 0 all mean "use the default". Momentum and
// WeightDecay already default to zero. Use a tiny positive value such as
// 1e-12 where a near-zero setting is wanted.
type Params struct {
	LearningRate float64 `json:"learning_rate"`
	Beta1        float64 `json:"beta1,omitempty"`
	Beta2        float64 `json:"beta2,omitempty"`
	Epsilon      float64 `json:"epsilon,omitempty"`
	Momentum     float64 `json:"momentum,omitempty"`
	Rho          float64 `json:"rho,omitempty"`
	WeightDecay  float64 `json:"weight_decay,omitempty"`
	Nesterov     bool    `json:"nesterov,omitempty"`
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// Factory creates backend optimizers.
type Factory struct {
	logger *logrus.Logger
}

// NewFactory creates a factory that logs fallbacks to logger. A nil logger
// uses a fresh logrus logger.
func NewFactory(logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}
	return &Factory{logger: logger}
}

// Resolve returns the kind Create would build for name. Unknown names
// resolve to FallbackKind with fellBack set.
func (f *Factory) Resolve(name string) (kind Kind, fellBack bool) {
	k, err := ParseKind(name)
	if err != nil {
		return FallbackKind, true
	}
	return k, false
}

// Create builds the optimizer named by kind on b. An unknown kind is not an
// error: a warning is logged and an Adam optimizer is returned with the
// same learning rate.
func (f *Factory) Create(b backend.Backend, kind string, p Params) (backend.Optimizer, error) {
	k, fellBack := f.Resolve(kind)
	if fellBack {
		f.logger.WithFields(logrus.Fields{
			"requested": kind,
			"using":     FallbackKind,
		}).Warn("unknown optimizer kind, falling back")
	}

	var bp backend.OptimizerParams
	switch k {
	case Adam:
		bp = DefaultAdamConfig().merge(p).backendParams()
	case SGD:
		bp = DefaultSGDConfig().merge(p).backendParams()
	case RMSProp:
		bp = DefaultRMSPropConfig().merge(p).backendParams()
	case AdaGrad:
		bp = DefaultAdaGradConfig().merge(p).backendParams()
	case AdaDelta:
		bp = DefaultAdaDeltaConfig().merge(p).backendParams()
	}

	opt, err := b.Optimizer(string(k), bp)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s optimizer", k)
	}
	return opt, nil
}
