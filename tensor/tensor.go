// Package tensor provides the dense float32 math primitives the model is
// built from: matrix multiplication, softmax, layer normalization,
// activations and dropout. Everything operates on flat backing slices with
// explicit index arithmetic; there is no accelerator backend.
package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Tensor is a multi-dimensional array of float32 values stored row-major.
type Tensor struct {
	Data  []float32
	Shape []int
}

// New creates a zero-filled tensor with the given shape.
func New(shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return &Tensor{
		Data:  make([]float32, size),
		Shape: shape,
	}
}

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	size := 1
	for _, dim := range t.Shape {
		size *= dim
	}
	return size
}

// At returns the element at the given indices.
func (t *Tensor) At(indices ...int) float32 {
	return t.Data[t.flatIndex(indices)]
}

// Set stores val at the given indices.
func (t *Tensor) Set(val float32, indices ...int) {
	t.Data[t.flatIndex(indices)] = val
}

func (t *Tensor) flatIndex(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("wrong number of indices: got %d, want %d", len(indices), len(t.Shape)))
	}
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	result := New(t.Shape...)
	copy(result.Data, t.Data)
	return result
}

// Reshape returns a view with a different shape over the same backing data.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	newSize := 1
	for _, dim := range shape {
		newSize *= dim
	}
	if newSize != t.Size() {
		panic(fmt.Sprintf("cannot reshape: size mismatch %d vs %d", newSize, t.Size()))
	}
	return &Tensor{
		Data:  t.Data,
		Shape: shape,
	}
}

// MatMul performs matrix multiplication: [m,k] x [k,n] -> [m,n].
func MatMul(a, b *Tensor) *Tensor {
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		panic("MatMul requires 2D tensors")
	}
	if a.Shape[1] != b.Shape[0] {
		panic(fmt.Sprintf("incompatible shapes: [%d,%d] x [%d,%d]", a.Shape[0], a.Shape[1], b.Shape[0], b.Shape[1]))
	}

	m, k, n := a.Shape[0], a.Shape[1], b.Shape[1]
	result := New(m, n)

	for i := 0; i < m; i++ {
		for p := 0; p < k; p++ {
			av := a.Data[i*k+p]
			if av == 0 {
				continue
			}
			row := result.Data[i*n : (i+1)*n]
			bRow := b.Data[p*n : (p+1)*n]
			for j := range row {
				row[j] += av * bRow[j]
			}
		}
	}

	return result
}

// Add performs element-wise addition.
func Add(a, b *Tensor) *Tensor {
	if len(a.Data) != len(b.Data) {
		panic("tensors must have same size")
	}
	result := New(a.Shape...)
	for i := range a.Data {
		result.Data[i] = a.Data[i] + b.Data[i]
	}
	return result
}

// AddBias adds a bias vector to every row of a [rows, cols] tensor in place.
func AddBias(t, bias *Tensor) *Tensor {
	cols := t.Shape[len(t.Shape)-1]
	if bias.Size() != cols {
		panic(fmt.Sprintf("bias size %d does not match last dimension %d", bias.Size(), cols))
	}
	rows := t.Size() / cols
	for i := 0; i < rows; i++ {
		row := t.Data[i*cols : (i+1)*cols]
		for j := range row {
			row[j] += bias.Data[j]
		}
	}
	return t
}

// Scale multiplies all elements by a scalar.
func Scale(t *Tensor, factor float32) *Tensor {
	result := New(t.Shape...)
	for i := range t.Data {
		result.Data[i] = t.Data[i] * factor
	}
	return result
}

// Transpose swaps the dimensions of a 2D tensor.
func Transpose(t *Tensor) *Tensor {
	if len(t.Shape) != 2 {
		panic("Transpose requires 2D tensor")
	}
	m, n := t.Shape[0], t.Shape[1]
	result := New(n, m)

	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			result.Data[j*m+i] = t.Data[i*n+j]
		}
	}
	return result
}

// Softmax applies a numerically stable softmax along the last dimension.
// Rows whose entries are all -Inf produce NaN; callers that mask rows are
// responsible for leaving at least one finite entry per row.
func Softmax(t *Tensor) *Tensor {
	result := New(t.Shape...)

	cols := t.Shape[len(t.Shape)-1]
	rows := t.Size() / cols

	for i := 0; i < rows; i++ {
		in := t.Data[i*cols : (i+1)*cols]
		out := result.Data[i*cols : (i+1)*cols]

		maxVal := in[0]
		for _, v := range in[1:] {
			if v > maxVal {
				maxVal = v
			}
		}

		sum := float32(0)
		for j, v := range in {
			e := float32(math.Exp(float64(v - maxVal)))
			out[j] = e
			sum += e
		}

		for j := range out {
			out[j] /= sum
		}
	}

	return result
}

// RandNormal fills a new tensor with N(0, std) samples drawn from rng.
func RandNormal(rng *rand.Rand, std float64, shape ...int) *Tensor {
	result := New(shape...)
	for i := range result.Data {
		result.Data[i] = float32(rng.NormFloat64() * std)
	}
	return result
}

// Ones returns a tensor with every element set to 1.
func Ones(shape ...int) *Tensor {
	result := New(shape...)
	for i := range result.Data {
		result.Data[i] = 1
	}
	return result
}
