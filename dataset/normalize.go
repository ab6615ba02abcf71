package dataset

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/tsawler/go-fit/tensor"
)

// Normalized is the result of per-column min-max scaling. Min and Max are
// kept so the transform can be inverted with Denormalize.
type Normalized struct {
	Tensor *tensor.Tensor
	Min    *tensor.Tensor
	Max    *tensor.Tensor

	once sync.Once
}

// Normalize scales every column of t into [0, 1]. Columns with a zero range
// are divided by 1 instead, so constant features map to 0. t is not
// modified and the caller owns the result.
func Normalize(t *tensor.Tensor) (*Normalized, error) {
	lo, err := t.Min()
	if err != nil {
		return nil, err
	}
	hi, err := t.Max()
	if err != nil {
		lo.Dispose()
		return nil, err
	}
	n := &Normalized{Min: lo, Max: hi}

	span, err := n.span()
	if err != nil {
		n.Dispose()
		return nil, err
	}
	defer span.Dispose()

	shifted, err := tensor.Sub(t, lo)
	if err != nil {
		n.Dispose()
		return nil, errors.Wrap(err, "normalize")
	}
	defer shifted.Dispose()

	if n.Tensor, err = tensor.Div(shifted, span); err != nil {
		n.Dispose()
		return nil, errors.Wrap(err, "normalize")
	}
	return n, nil
}

// span is max - min with zero entries replaced by 1.
func (n *Normalized) span() (*tensor.Tensor, error) {
	diff, err := tensor.Sub(n.Max, n.Min)
	if err != nil {
		return nil, err
	}
	defer diff.Dispose()
	values, err := diff.Data()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if v == 0 {
			values[i] = 1
		}
	}
	return tensor.New(values, diff.Shape()...)
}

// Denormalize maps a tensor in normalized space back to the original
// scale. The caller owns the result.
func (n *Normalized) Denormalize(t *tensor.Tensor) (*tensor.Tensor, error) {
	span, err := n.span()
	if err != nil {
		return nil, err
	}
	defer span.Dispose()
	scaled, err := tensor.Mul(t, span)
	if err != nil {
		return nil, errors.Wrap(err, "denormalize")
	}
	defer scaled.Dispose()
	return tensor.Add(scaled, n.Min)
}

// Dispose releases the normalized tensor and the min/max tensors.
func (n *Normalized) Dispose() {
	n.once.Do(func() {
		for _, t := range []*tensor.Tensor{n.Tensor, n.Min, n.Max} {
			if t != nil {
				t.Dispose()
			}
		}
	})
}
