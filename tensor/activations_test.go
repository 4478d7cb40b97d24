package tensor

import (
	"math"
	"testing"
)

func approx(t *testing.T, got, want float32, tol float64) {
	t.Helper()
	if math.Abs(float64(got-want)) > tol {
		t.Errorf("got %v, want %v (tol %v)", got, want, tol)
	}
}

func TestGELU(t *testing.T) {
	x := &Tensor{Data: []float32{0, 1, -1}, Shape: []int{3}}
	out := GELU(x)

	approx(t, out.Data[0], 0, 1e-6)
	approx(t, out.Data[1], 0.8412, 1e-3)
	approx(t, out.Data[2], -0.1588, 1e-3)
}

func TestReLU(t *testing.T) {
	x := &Tensor{Data: []float32{-2, 0, 3}, Shape: []int{3}}
	out := ReLU(x)

	if out.Data[0] != 0 || out.Data[1] != 0 || out.Data[2] != 3 {
		t.Errorf("unexpected relu output: %v", out.Data)
	}
}

func TestSiLU(t *testing.T) {
	x := &Tensor{Data: []float32{0, 1}, Shape: []int{2}}
	out := SiLU(x)

	approx(t, out.Data[0], 0, 1e-6)
	approx(t, out.Data[1], 0.7311, 1e-3)
}

func TestDropoutInferenceIsNoop(t *testing.T) {
	x := &Tensor{Data: []float32{1, 2, 3, 4}, Shape: []int{4}}
	out := Dropout(x, 0.5, false)

	for i := range x.Data {
		if out.Data[i] != x.Data[i] {
			t.Fatal("inference dropout must not change values")
		}
	}
}

func TestDropoutTraining(t *testing.T) {
	SetDropoutSeed(123)

	x := Ones(1000)
	out := Dropout(x, 0.5, true)

	zeros := 0
	for _, v := range out.Data {
		switch v {
		case 0:
			zeros++
		case 2:
			// survivors scaled by 1/(1-p)
		default:
			t.Fatalf("unexpected value %v", v)
		}
	}
	if zeros < 350 || zeros > 650 {
		t.Errorf("dropped %d of 1000 at p=0.5", zeros)
	}
}
