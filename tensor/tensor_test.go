package tensor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/tsawler/go-fit/errs"
)

func mustRows(t *testing.T, rows [][]float32) *Tensor {
	t.Helper()
	tt, err := FromRows(rows)
	if err != nil {
		t.Fatalf("FromRows failed: %v", err)
	}
	return tt
}

func TestNewValidatesShape(t *testing.T) {
	tests := []struct {
		name    string
		data    []float32
		shape   []int
		wantErr bool
	}{
		{"matrix", []float32{1, 2, 3, 4, 5, 6}, []int{2, 3}, false},
		{"length mismatch", []float32{1, 2, 3}, []int{2, 2}, true},
		{"zero dim", []float32{}, []int{0, 3}, true},
		{"negative dim", []float32{1}, []int{-1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.data, tt.shape...)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%v, %v) error = %v, wantErr %v", tt.data, tt.shape, err, tt.wantErr)
			}
		})
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	tt := mustRows(t, [][]float32{{1, 2}, {3, 4}})
	tt.Dispose()
	tt.Dispose()
	if !tt.IsDisposed() {
		t.Fatal("expected tensor to be disposed")
	}
	if _, err := tt.Data(); !errs.IsDisposed(err) {
		t.Errorf("expected DisposedResourceError, got %v", err)
	}
	if _, err := tt.Slice(0, 1); !errs.IsDisposed(err) {
		t.Errorf("expected DisposedResourceError from Slice, got %v", err)
	}
}

func TestSliceAndGather(t *testing.T) {
	tt := mustRows(t, [][]float32{{1, 2}, {3, 4}, {5, 6}})

	s, err := tt.Slice(1, 2)
	if err != nil {
		t.Fatalf("Slice failed: %v", err)
	}
	data, _ := s.Data()
	want := []float32{3, 4, 5, 6}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("Slice data = %v, want %v", data, want)
		}
	}

	g, err := tt.Gather([]int{2, 0})
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	data, _ = g.Data()
	want = []float32{5, 6, 1, 2}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("Gather data = %v, want %v", data, want)
		}
	}

	if _, err := tt.Slice(2, 2); err == nil {
		t.Error("expected out-of-range slice to fail")
	}
	if _, err := tt.Gather([]int{3}); err == nil {
		t.Error("expected out-of-range gather to fail")
	}
}

func TestColumnReductions(t *testing.T) {
	tt := mustRows(t, [][]float32{{1, 10}, {3, 20}, {5, 30}})

	check := func(name string, got *Tensor, want []float32) {
		t.Helper()
		data, err := got.Data()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		for i := range want {
			if math.Abs(float64(data[i]-want[i])) > 1e-4 {
				t.Errorf("%s = %v, want %v", name, data, want)
				return
			}
		}
	}

	lo, _ := tt.Min()
	hi, _ := tt.Max()
	mean, _ := tt.Mean()
	std, _ := tt.Std()
	check("min", lo, []float32{1, 10})
	check("max", hi, []float32{5, 30})
	check("mean", mean, []float32{3, 20})
	check("std", std, []float32{float32(math.Sqrt(8.0 / 3.0)), float32(math.Sqrt(200.0 / 3.0))})
}

func TestBroadcastSubDiv(t *testing.T) {
	tt := mustRows(t, [][]float32{{2, 4}, {6, 8}})
	row, _ := New([]float32{2, 4}, 2)

	diff, err := Sub(tt, row)
	if err != nil {
		t.Fatalf("Sub failed: %v", err)
	}
	data, _ := diff.Data()
	if data[0] != 0 || data[1] != 0 || data[2] != 4 || data[3] != 4 {
		t.Errorf("Sub = %v", data)
	}

	q, err := Div(tt, row)
	if err != nil {
		t.Fatalf("Div failed: %v", err)
	}
	data, _ = q.Data()
	if data[2] != 3 || data[3] != 2 {
		t.Errorf("Div = %v", data)
	}

	zero, _ := Zeros(2)
	if _, err := Div(tt, zero); err == nil {
		t.Error("expected division by zero to fail")
	}
	bad, _ := Zeros(3)
	if _, err := Sub(tt, bad); err == nil {
		t.Error("expected incompatible shapes to fail")
	}
}

func TestReshapeInfersDimension(t *testing.T) {
	tt, _ := Zeros(2, 3, 4)
	r, err := tt.Reshape(2, -1)
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if s := r.Shape(); s[0] != 2 || s[1] != 12 {
		t.Errorf("Reshape shape = %v", s)
	}
	if _, err := tt.Reshape(5, -1); err == nil {
		t.Error("expected non-divisible reshape to fail")
	}
}

func TestRandomUniformRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tt, err := RandomUniform(rng, -1, 1, 50, 4)
	if err != nil {
		t.Fatalf("RandomUniform failed: %v", err)
	}
	data, _ := tt.Data()
	for _, v := range data {
		if v < -1 || v >= 1 {
			t.Fatalf("value %v outside [-1, 1)", v)
		}
	}
	if tt.Rows() != 50 || tt.RowSize() != 4 {
		t.Errorf("unexpected dims rows=%d rowSize=%d", tt.Rows(), tt.RowSize())
	}
}
