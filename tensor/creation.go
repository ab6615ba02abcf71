package tensor

import (
	"fmt"
	"math/rand"
)

// New creates a tensor from data with the given shape. The data slice is
// copied.
func New(data []float32, shape ...int) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	numElems := calculateNumElements(shape)
	if len(data) != numElems {
		return nil, fmt.Errorf("data length %d does not match tensor size %d", len(data), numElems)
	}
	owned := make([]float32, numElems)
	copy(owned, data)
	s := make([]int, len(shape))
	copy(s, shape)
	return newTensor(s, owned), nil
}

// Zeros creates a zero-filled tensor.
func Zeros(shape ...int) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return newTensor(s, make([]float32, calculateNumElements(shape))), nil
}

// Full creates a tensor with every element set to value.
func Full(value float32, shape ...int) (*Tensor, error) {
	t, err := Zeros(shape...)
	if err != nil {
		return nil, err
	}
	for i := range t.data {
		t.data[i] = value
	}
	return t, nil
}

// Scalar creates a rank-0 tensor.
func Scalar(value float32) *Tensor {
	return newTensor([]int{}, []float32{value})
}

// FromFloat64s creates a tensor from float64 data, narrowing to float32.
func FromFloat64s(data []float64, shape ...int) (*Tensor, error) {
	narrowed := make([]float32, len(data))
	for i, v := range data {
		narrowed[i] = float32(v)
	}
	return New(narrowed, shape...)
}

// FromRows creates a [len(rows), len(rows[0])] tensor. All rows must have
// the same width.
func FromRows(rows [][]float32) (*Tensor, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("cannot create tensor from zero rows")
	}
	width := len(rows[0])
	if width == 0 {
		return nil, fmt.Errorf("cannot create tensor from empty rows")
	}
	data := make([]float32, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), width)
		}
		data = append(data, row...)
	}
	return newTensor([]int{len(rows), width}, data), nil
}

// RandomUniform fills a tensor with values drawn uniformly from [low, high).
func RandomUniform(rng *rand.Rand, low, high float32, shape ...int) (*Tensor, error) {
	t, err := Zeros(shape...)
	if err != nil {
		return nil, err
	}
	for i := range t.data {
		t.data[i] = low + rng.Float32()*(high-low)
	}
	return t, nil
}

// RandomNormal fills a tensor with values drawn from N(mean, std²).
func RandomNormal(rng *rand.Rand, mean, std float32, shape ...int) (*Tensor, error) {
	t, err := Zeros(shape...)
	if err != nil {
		return nil, err
	}
	for i := range t.data {
		t.data[i] = mean + float32(rng.NormFloat64())*std
	}
	return t, nil
}
