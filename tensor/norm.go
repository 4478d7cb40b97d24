package tensor

import "math"

// LayerNorm normalizes the last dimension of t to zero mean and unit
// variance, then applies the learned scale and offset. weight and bias must
// have the size of the last dimension.
func LayerNorm(t, weight, bias *Tensor, eps float32) *Tensor {
	result := New(t.Shape...)

	hidden := t.Shape[len(t.Shape)-1]
	rows := t.Size() / hidden

	for i := 0; i < rows; i++ {
		in := t.Data[i*hidden : (i+1)*hidden]
		out := result.Data[i*hidden : (i+1)*hidden]

		mean := float32(0)
		for _, v := range in {
			mean += v
		}
		mean /= float32(hidden)

		variance := float32(0)
		for _, v := range in {
			diff := v - mean
			variance += diff * diff
		}
		variance /= float32(hidden)

		std := float32(math.Sqrt(float64(variance + eps)))
		for j, v := range in {
			out[j] = (v-mean)/std*weight.Data[j] + bias.Data[j]
		}
	}

	return result
}
