package cpu

import (
	"math"
	"testing"
)

func TestActivationForwardValues(t *testing.T) {
	z := []float64{-2, 0, 1}
	tests := []struct {
		name string
		want []float64
	}{
		{"linear", []float64{-2, 0, 1}},
		{"relu", []float64{0, 0, 1}},
		{"sigmoid", []float64{0.11920292, 0.5, 0.73105858}},
		{"tanh", []float64{-0.96402758, 0, 0.76159416}},
		{"elu", []float64{math.Exp(-2) - 1, 0, 1}},
		{"leakyRelu", []float64{-2 * leakyReLUSlope, 0, 1}},
		{"", []float64{-2, 0, 1}},
	}
	for _, tt := range tests {
		act, err := newActivation(tt.name)
		if err != nil {
			t.Fatalf("newActivation(%q): %v", tt.name, err)
		}
		got := act.forward(z, len(z))
		for i := range got {
			if math.Abs(got[i]-tt.want[i]) > 1e-6 {
				t.Errorf("%s(%v) = %v, want %v", tt.name, z[i], got[i], tt.want[i])
			}
		}
	}
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	act, _ := newActivation("softmax")
	// large values must not overflow
	out := act.forward([]float64{1, 2, 3, 1000, 1000, 1000}, 3)
	for row := 0; row < 2; row++ {
		sum := 0.0
		for _, v := range out[row*3 : row*3+3] {
			if math.IsNaN(v) {
				t.Fatalf("row %d has NaN: %v", row, out)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("row %d sums to %v", row, sum)
		}
	}
	if math.Abs(out[3]-1.0/3) > 1e-9 {
		t.Errorf("equal logits should give equal probabilities, got %v", out[3:])
	}
}

func TestActivationBackwardMatchesFiniteDifference(t *testing.T) {
	// no point sits at 0, where relu and leakyRelu have no derivative
	z := []float64{-1.3, -0.4, 0.7, 1.9}
	const h = 1e-6
	for _, name := range []string{"sigmoid", "tanh", "elu", "relu", "leakyRelu", "softmax"} {
		act, err := newActivation(name)
		if err != nil {
			t.Fatal(err)
		}
		group := len(z)
		a := act.forward(z, group)
		// d(sum_i w_i * a_i)/dz with fixed weights w
		w := []float64{0.3, -0.7, 1.1, 0.5}
		grad := act.backward(w, z, a, group)
		for i := range z {
			plus := append([]float64(nil), z...)
			minus := append([]float64(nil), z...)
			plus[i] += h
			minus[i] -= h
			ap, am := act.forward(plus, group), act.forward(minus, group)
			numeric := 0.0
			for j := range w {
				numeric += w[j] * (ap[j] - am[j]) / (2 * h)
			}
			if math.Abs(numeric-grad[i]) > 1e-5 {
				t.Errorf("%s: dz[%d] = %v, finite difference %v", name, i, grad[i], numeric)
			}
		}
	}
}

func TestUnknownActivation(t *testing.T) {
	if _, err := newActivation("swish"); err == nil {
		t.Error("expected error for unsupported activation")
	}
}
