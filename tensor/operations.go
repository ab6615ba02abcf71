package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Slice returns count rows starting at start along the leading axis.
func (t *Tensor) Slice(start, count int) (*Tensor, error) {
	if err := t.checkLive(); err != nil {
		return nil, err
	}
	if len(t.shape) == 0 {
		return nil, fmt.Errorf("cannot slice a scalar")
	}
	if start < 0 || count <= 0 || start+count > t.shape[0] {
		return nil, fmt.Errorf("slice [%d, %d) out of range for %d rows", start, start+count, t.shape[0])
	}
	n := t.RowSize()
	data := make([]float32, count*n)
	copy(data, t.data[start*n:(start+count)*n])
	shape := t.Shape()
	shape[0] = count
	return newTensor(shape, data), nil
}

// Gather returns the rows at the given indices along the leading axis.
func (t *Tensor) Gather(indices []int) (*Tensor, error) {
	if err := t.checkLive(); err != nil {
		return nil, err
	}
	if len(t.shape) == 0 {
		return nil, fmt.Errorf("cannot gather from a scalar")
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("gather requires at least one index")
	}
	n := t.RowSize()
	data := make([]float32, len(indices)*n)
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[0] {
			return nil, fmt.Errorf("gather index %d out of range for %d rows", idx, t.shape[0])
		}
		copy(data[i*n:(i+1)*n], t.data[idx*n:(idx+1)*n])
	}
	shape := t.Shape()
	shape[0] = len(indices)
	return newTensor(shape, data), nil
}

// Min reduces over the leading axis, returning one value per column.
func (t *Tensor) Min() (*Tensor, error) {
	return t.reduceColumns(floats.Min)
}

// Max reduces over the leading axis, returning one value per column.
func (t *Tensor) Max() (*Tensor, error) {
	return t.reduceColumns(floats.Max)
}

// Mean reduces over the leading axis, returning one value per column.
func (t *Tensor) Mean() (*Tensor, error) {
	return t.reduceColumns(func(col []float64) float64 {
		return stat.Mean(col, nil)
	})
}

// Std returns the population standard deviation of every column.
func (t *Tensor) Std() (*Tensor, error) {
	return t.reduceColumns(func(col []float64) float64 {
		_, std := stat.PopMeanStdDev(col, nil)
		return std
	})
}

// Columns returns every column widened to float64.
func (t *Tensor) Columns() ([][]float64, error) {
	if err := t.checkLive(); err != nil {
		return nil, err
	}
	rows, n := t.Rows(), t.RowSize()
	cols := make([][]float64, n)
	for c := 0; c < n; c++ {
		col := make([]float64, rows)
		for r := 0; r < rows; r++ {
			col[r] = float64(t.data[r*n+c])
		}
		cols[c] = col
	}
	return cols, nil
}

func (t *Tensor) reduceColumns(reduce func([]float64) float64) (*Tensor, error) {
	cols, err := t.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(cols))
	for i, col := range cols {
		out[i] = float32(reduce(col))
	}
	shape := []int{len(cols)}
	if len(t.shape) > 1 {
		shape = t.Shape()[1:]
	}
	return newTensor(shape, out), nil
}

// Sub returns t - other. other may match t's shape or hold one row that is
// broadcast across every row of t.
func Sub(t, other *Tensor) (*Tensor, error) {
	return binary(t, other, "Sub", func(a, b float32) (float32, error) {
		return a - b, nil
	})
}

// Div returns t / other with the same broadcasting rules as Sub.
func Div(t, other *Tensor) (*Tensor, error) {
	return binary(t, other, "Div", func(a, b float32) (float32, error) {
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a / b, nil
	})
}

// Add returns t + other with the same broadcasting rules as Sub.
func Add(t, other *Tensor) (*Tensor, error) {
	return binary(t, other, "Add", func(a, b float32) (float32, error) {
		return a + b, nil
	})
}

// Mul returns t * other with the same broadcasting rules as Sub.
func Mul(t, other *Tensor) (*Tensor, error) {
	return binary(t, other, "Mul", func(a, b float32) (float32, error) {
		return a * b, nil
	})
}

func binary(t, other *Tensor, op string, fn func(a, b float32) (float32, error)) (*Tensor, error) {
	if err := t.checkLive(); err != nil {
		return nil, err
	}
	if err := other.checkLive(); err != nil {
		return nil, err
	}

	var period int
	switch {
	case shapesEqual(t.shape, other.shape):
		period = len(t.data)
	case len(other.data) == t.RowSize():
		period = len(other.data)
	default:
		return nil, fmt.Errorf("%s: incompatible shapes %v and %v", op, t.shape, other.shape)
	}

	data := make([]float32, len(t.data))
	for i, a := range t.data {
		v, err := fn(a, other.data[i%period])
		if err != nil {
			return nil, fmt.Errorf("%s at index %d: %v", op, i, err)
		}
		data[i] = v
	}
	return newTensor(t.Shape(), data), nil
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
