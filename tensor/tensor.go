// Package tensor provides the CPU float32 tensor used by the reference
// backend and by datasets. Tensors own their storage and are released with
// Dispose; every read after disposal fails with a DisposedResourceError.
package tensor

import (
	"fmt"
	"sync/atomic"

	"github.com/tsawler/go-fit/errs"
)

// BytesPerElement is the storage size assumed for every element.
const BytesPerElement = 4

// Tensor is a dense row-major float32 tensor.
type Tensor struct {
	shape    []int
	strides  []int
	data     []float32
	disposed atomic.Bool
}

func (t *Tensor) String() string {
	if t.IsDisposed() {
		return "Tensor(disposed)"
	}
	return fmt.Sprintf("Tensor(shape=%v, elements=%d)", t.shape, len(t.data))
}

// Shape returns a copy of the tensor shape.
func (t *Tensor) Shape() []int {
	result := make([]int, len(t.shape))
	copy(result, t.shape)
	return result
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Size returns the number of elements.
func (t *Tensor) Size() int {
	return calculateNumElements(t.shape)
}

// Rows returns the size of the leading dimension (1 for scalars).
func (t *Tensor) Rows() int {
	if len(t.shape) == 0 {
		return 1
	}
	return t.shape[0]
}

// RowSize returns the number of elements in one leading-axis slice.
func (t *Tensor) RowSize() int {
	if len(t.shape) == 0 {
		return 1
	}
	return calculateNumElements(t.shape[1:])
}

// Dispose releases the tensor storage. It is safe to call more than once.
func (t *Tensor) Dispose() {
	if t.disposed.Swap(true) {
		return
	}
	t.data = nil
}

// IsDisposed reports whether Dispose has been called.
func (t *Tensor) IsDisposed() bool {
	return t.disposed.Load()
}

func (t *Tensor) checkLive() error {
	if t == nil {
		return fmt.Errorf("nil tensor")
	}
	if t.IsDisposed() {
		return errs.NewDisposed("tensor")
	}
	return nil
}

// Data returns a copy of the tensor elements.
func (t *Tensor) Data() ([]float32, error) {
	if err := t.checkLive(); err != nil {
		return nil, err
	}
	out := make([]float32, len(t.data))
	copy(out, t.data)
	return out, nil
}

// Float64s returns the elements widened to float64.
func (t *Tensor) Float64s() ([]float64, error) {
	if err := t.checkLive(); err != nil {
		return nil, err
	}
	out := make([]float64, len(t.data))
	for i, v := range t.data {
		out[i] = float64(v)
	}
	return out, nil
}

// Value returns the single element of a scalar or one-element tensor.
func (t *Tensor) Value() (float32, error) {
	if err := t.checkLive(); err != nil {
		return 0, err
	}
	if len(t.data) != 1 {
		return 0, fmt.Errorf("tensor with shape %v is not a scalar", t.shape)
	}
	return t.data[0], nil
}

// At returns the element at the given indices.
func (t *Tensor) At(indices ...int) (float32, error) {
	if err := t.checkLive(); err != nil {
		return 0, err
	}
	if len(indices) != len(t.shape) {
		return 0, fmt.Errorf("expected %d indices, got %d", len(t.shape), len(indices))
	}
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			return 0, fmt.Errorf("index %d out of range for dimension %d of size %d", idx, i, t.shape[i])
		}
	}
	return t.data[getIndex(indices, t.strides)], nil
}

// Row returns a copy of the i-th leading-axis slice as a flat slice.
func (t *Tensor) Row(i int) ([]float32, error) {
	if err := t.checkLive(); err != nil {
		return nil, err
	}
	if i < 0 || i >= t.Rows() {
		return nil, fmt.Errorf("row %d out of range [0, %d)", i, t.Rows())
	}
	n := t.RowSize()
	out := make([]float32, n)
	copy(out, t.data[i*n:(i+1)*n])
	return out, nil
}

// Clone returns an independent copy.
func (t *Tensor) Clone() (*Tensor, error) {
	if err := t.checkLive(); err != nil {
		return nil, err
	}
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return newTensor(t.Shape(), data), nil
}

// Reshape returns a copy with a new shape holding the same element count.
// One dimension may be -1 and is inferred.
func (t *Tensor) Reshape(newShape ...int) (*Tensor, error) {
	if err := t.checkLive(); err != nil {
		return nil, err
	}
	shape := make([]int, len(newShape))
	copy(shape, newShape)

	known := 1
	infer := -1
	for i, dim := range shape {
		switch {
		case dim == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("only one dimension can be -1")
			}
			infer = i
		case dim <= 0:
			return nil, fmt.Errorf("dimension %d has size %d, must be positive", i, dim)
		default:
			known *= dim
		}
	}
	if infer >= 0 {
		if len(t.data)%known != 0 {
			return nil, fmt.Errorf("cannot reshape tensor of size %d into shape %v", len(t.data), newShape)
		}
		shape[infer] = len(t.data) / known
		known *= shape[infer]
	}
	if known != len(t.data) {
		return nil, fmt.Errorf("cannot reshape tensor of size %d into shape %v (size %d)", len(t.data), shape, known)
	}
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return newTensor(shape, data), nil
}

func newTensor(shape []int, data []float32) *Tensor {
	return &Tensor{
		shape:   shape,
		strides: calculateStrides(shape),
		data:    data,
	}
}

func calculateStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

// calculateNumElements treats the empty shape as a scalar.
func calculateNumElements(shape []int) int {
	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}

func getIndex(indices []int, strides []int) int {
	index := 0
	for i, idx := range indices {
		index += idx * strides[i]
	}
	return index
}
