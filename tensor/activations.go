package tensor

import "math"

// GELU applies the Gaussian Error Linear Unit (tanh approximation).
func GELU(t *Tensor) *Tensor {
	result := New(t.Shape...)
	for i, x := range t.Data {
		// 0.5 * x * (1 + tanh(sqrt(2/pi) * (x + 0.044715 * x^3)))
		x3 := x * x * x
		inner := math.Sqrt(2.0/math.Pi) * float64(x+0.044715*x3)
		result.Data[i] = 0.5 * x * (1.0 + float32(math.Tanh(inner)))
	}
	return result
}

// ReLU applies max(0, x) element-wise.
func ReLU(t *Tensor) *Tensor {
	result := New(t.Shape...)
	for i, x := range t.Data {
		if x > 0 {
			result.Data[i] = x
		}
	}
	return result
}

// SiLU applies x * sigmoid(x) element-wise (also known as swish).
func SiLU(t *Tensor) *Tensor {
	result := New(t.Shape...)
	for i, x := range t.Data {
		result.Data[i] = x / (1.0 + float32(math.Exp(float64(-x))))
	}
	return result
}
