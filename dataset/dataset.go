// Package dataset holds feature and label tensors together with their shape
// metadata, and provides the statistics, splitting, shuffling and
// normalization helpers shared by every loader.
package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tsawler/go-fit/errs"
	"github.com/tsawler/go-fit/tensor"
)

// Source is the contract a loader's output satisfies. Dataset implements it.
type Source interface {
	Inputs() (*tensor.Tensor, error)
	Labels() (*tensor.Tensor, error)
	InputShape() ([]int, error)
	OutputShape() ([]int, error)
	SampleCount() (int, error)
	Dispose()
}

// Dataset owns an inputs tensor and a labels tensor with the same number of
// rows, plus an optional train/test split of them. Dispose releases every
// held tensor exactly once.
type Dataset struct {
	mu sync.Mutex

	inputs        *tensor.Tensor
	labels        *tensor.Tensor
	inputShape    []int
	outputShape   []int
	inputColumns  []string
	outputColumns []string
	sampleCount   int

	split    *Split
	disposed bool
}

var _ Source = (*Dataset)(nil)

// Option configures a Dataset.
type Option func(*Dataset)

// WithColumns names the input and output columns.
func WithColumns(inputColumns, outputColumns []string) Option {
	return func(d *Dataset) {
		d.inputColumns = append([]string(nil), inputColumns...)
		d.outputColumns = append([]string(nil), outputColumns...)
	}
}

// New creates a dataset that takes ownership of inputs and labels.
func New(inputs, labels *tensor.Tensor, opts ...Option) (*Dataset, error) {
	if inputs == nil || labels == nil {
		return nil, fmt.Errorf("inputs and labels are required")
	}
	if inputs.IsDisposed() || labels.IsDisposed() {
		return nil, errs.NewDisposed("tensor")
	}
	if inputs.Rank() < 1 || labels.Rank() < 1 {
		return nil, fmt.Errorf("inputs and labels need a leading sample axis")
	}
	if inputs.Rows() != labels.Rows() {
		return nil, fmt.Errorf("inputs have %d samples but labels have %d", inputs.Rows(), labels.Rows())
	}

	d := &Dataset{
		inputs:      inputs,
		labels:      labels,
		inputShape:  sampleShape(inputs),
		outputShape: sampleShape(labels),
		sampleCount: inputs.Rows(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.inputColumns != nil && len(d.inputColumns) != inputs.RowSize() {
		return nil, fmt.Errorf("%d input column names for %d features", len(d.inputColumns), inputs.RowSize())
	}
	if d.outputColumns != nil && len(d.outputColumns) != labels.RowSize() {
		return nil, fmt.Errorf("%d output column names for %d outputs", len(d.outputColumns), labels.RowSize())
	}
	return d, nil
}

// FromRows builds a dataset from row-major feature and label rows.
func FromRows(inputs, labels [][]float32, opts ...Option) (*Dataset, error) {
	x, err := tensor.FromRows(inputs)
	if err != nil {
		return nil, errors.Wrap(err, "inputs")
	}
	y, err := tensor.FromRows(labels)
	if err != nil {
		x.Dispose()
		return nil, errors.Wrap(err, "labels")
	}
	d, err := New(x, y, opts...)
	if err != nil {
		x.Dispose()
		y.Dispose()
		return nil, err
	}
	return d, nil
}

func sampleShape(t *tensor.Tensor) []int {
	shape := t.Shape()
	if len(shape) == 1 {
		return []int{1}
	}
	return shape[1:]
}

func (d *Dataset) checkLive() error {
	if d.disposed {
		return errs.NewDisposed("dataset")
	}
	return nil
}

// Dispose releases inputs, labels and any applied split. Later calls are
// no-ops.
func (d *Dataset) Dispose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return
	}
	d.disposed = true
	d.inputs.Dispose()
	d.labels.Dispose()
	if d.split != nil {
		d.split.Dispose()
		d.split = nil
	}
}

// IsDisposed reports whether Dispose has been called.
func (d *Dataset) IsDisposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

// Inputs returns the feature tensor. The dataset keeps ownership.
func (d *Dataset) Inputs() (*tensor.Tensor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	return d.inputs, nil
}

// Labels returns the label tensor. The dataset keeps ownership.
func (d *Dataset) Labels() (*tensor.Tensor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	return d.labels, nil
}

// InputShape is the per-sample feature shape.
func (d *Dataset) InputShape() ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	return append([]int(nil), d.inputShape...), nil
}

// OutputShape is the per-sample label shape.
func (d *Dataset) OutputShape() ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	return append([]int(nil), d.outputShape...), nil
}

// InputColumns returns the feature column names, if any were given.
func (d *Dataset) InputColumns() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	return append([]string(nil), d.inputColumns...), nil
}

// OutputColumns returns the label column names, if any were given.
func (d *Dataset) OutputColumns() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	return append([]string(nil), d.outputColumns...), nil
}

// SampleCount is the number of rows.
func (d *Dataset) SampleCount() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLive(); err != nil {
		return 0, err
	}
	return d.sampleCount, nil
}

// TrainTest returns the split stored by ApplySplit, or nil when none was
// applied. The dataset keeps ownership of the split.
func (d *Dataset) TrainTest() (*Split, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	return d.split, nil
}

// Clone copies inputs and labels into tensors owned by the caller. Use it to
// hand data to a call that consumes its tensors.
func (d *Dataset) Clone() (inputs, labels *tensor.Tensor, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLive(); err != nil {
		return nil, nil, err
	}
	if inputs, err = d.inputs.Clone(); err != nil {
		return nil, nil, err
	}
	if labels, err = d.labels.Clone(); err != nil {
		inputs.Dispose()
		return nil, nil, err
	}
	return inputs, labels, nil
}

// MemoryUsage is the number of elements across every held tensor times
// tensor.BytesPerElement.
func (d *Dataset) MemoryUsage() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLive(); err != nil {
		return 0, err
	}
	elements := d.inputs.Size() + d.labels.Size()
	if d.split != nil {
		for _, t := range d.split.tensors() {
			elements += t.Size()
		}
	}
	return int64(elements) * tensor.BytesPerElement, nil
}

// Split is a contiguous train/test partition. Its tensors are independent
// copies; whoever holds the Split disposes it.
type Split struct {
	TrainInputs *tensor.Tensor
	TrainLabels *tensor.Tensor
	TestInputs  *tensor.Tensor
	TestLabels  *tensor.Tensor
	TrainCount  int
	TestCount   int

	once sync.Once
}

func (s *Split) tensors() []*tensor.Tensor {
	return []*tensor.Tensor{s.TrainInputs, s.TrainLabels, s.TestInputs, s.TestLabels}
}

// Dispose releases the four tensors. Later calls are no-ops.
func (s *Split) Dispose() {
	s.once.Do(func() {
		for _, t := range s.tensors() {
			if t != nil {
				t.Dispose()
			}
		}
	})
}

// Split partitions the rows without shuffling: the first
// floor(trainRatio*n) rows train, the rest test. The caller owns the result.
func (d *Dataset) Split(trainRatio float64) (*Split, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	return d.splitLocked(trainRatio)
}

func (d *Dataset) splitLocked(trainRatio float64) (*Split, error) {
	if trainRatio <= 0 || trainRatio >= 1 || math.IsNaN(trainRatio) {
		return nil, errs.NewConfigValidation("train_ratio", "must be in (0, 1), got %g", trainRatio)
	}
	trainCount := int(math.Floor(float64(d.sampleCount) * trainRatio))
	testCount := d.sampleCount - trainCount
	if trainCount == 0 || testCount == 0 {
		return nil, errs.NewConfigValidation("train_ratio", "%g leaves an empty partition for %d samples", trainRatio, d.sampleCount)
	}

	s := &Split{TrainCount: trainCount, TestCount: testCount}
	var err error
	if s.TrainInputs, err = d.inputs.Slice(0, trainCount); err != nil {
		return nil, err
	}
	if s.TrainLabels, err = d.labels.Slice(0, trainCount); err != nil {
		s.Dispose()
		return nil, err
	}
	if s.TestInputs, err = d.inputs.Slice(trainCount, testCount); err != nil {
		s.Dispose()
		return nil, err
	}
	if s.TestLabels, err = d.labels.Slice(trainCount, testCount); err != nil {
		s.Dispose()
		return nil, err
	}
	return s, nil
}

// ApplySplit stores a split on the dataset, replacing and releasing any
// earlier one. The stored split is released with the dataset.
func (d *Dataset) ApplySplit(trainRatio float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLive(); err != nil {
		return err
	}
	s, err := d.splitLocked(trainRatio)
	if err != nil {
		return err
	}
	if d.split != nil {
		d.split.Dispose()
	}
	d.split = s
	return nil
}

// Shuffle applies one random permutation to inputs and labels so rows stay
// aligned. An applied split is left as it was. A nil rng uses a time-seeded
// source.
func (d *Dataset) Shuffle(rng *rand.Rand) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLive(); err != nil {
		return err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	perm := rng.Perm(d.sampleCount)
	inputs, err := d.inputs.Gather(perm)
	if err != nil {
		return err
	}
	labels, err := d.labels.Gather(perm)
	if err != nil {
		inputs.Dispose()
		return err
	}
	d.inputs.Dispose()
	d.labels.Dispose()
	d.inputs, d.labels = inputs, labels
	return nil
}
