package dataset

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-fit/tensor"
)

// FeatureStats holds one value per column for each statistic. Std is the
// population standard deviation.
type FeatureStats struct {
	Min  []float64 `json:"min"`
	Max  []float64 `json:"max"`
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Stats summarizes inputs and labels column by column.
type Stats struct {
	Inputs FeatureStats `json:"inputs"`
	Labels FeatureStats `json:"labels"`
}

// Stats computes per-feature statistics over the full inputs and labels.
func (d *Dataset) Stats() (*Stats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	in, err := columnStats(d.inputs)
	if err != nil {
		return nil, errors.Wrap(err, "input stats")
	}
	out, err := columnStats(d.labels)
	if err != nil {
		return nil, errors.Wrap(err, "label stats")
	}
	return &Stats{Inputs: *in, Labels: *out}, nil
}

func columnStats(t *tensor.Tensor) (*FeatureStats, error) {
	reductions := []func() (*tensor.Tensor, error){t.Min, t.Max, t.Mean, t.Std}
	values := make([][]float64, len(reductions))
	for i, reduce := range reductions {
		r, err := reduce()
		if err != nil {
			return nil, err
		}
		values[i], err = r.Float64s()
		r.Dispose()
		if err != nil {
			return nil, err
		}
	}
	return &FeatureStats{Min: values[0], Max: values[1], Mean: values[2], Std: values[3]}, nil
}
