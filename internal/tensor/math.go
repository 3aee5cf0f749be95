package tensor

import "math"

// GELU applies the exact gaussian error linear unit,
// 0.5 * x * (1 + erf(x / sqrt2)).
func GELU(x float32) float32 {
	return float32(0.5 * float64(x) * (1.0 + math.Erf(float64(x)/math.Sqrt2)))
}

// GELUInPlace applies GELU elementwise.
func GELUInPlace(v []float32) {
	for i, x := range v {
		v[i] = GELU(x)
	}
}

// Sigmoid maps a logit to (0, 1).
func Sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(x))))
}

// Softmax writes the softmax of src into dst. Max subtraction keeps the
// exponentials finite for sentinel-masked inputs.
func Softmax(dst, src []float32) {
	maxVal := src[0]
	for _, v := range src[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for i, v := range src {
		e := math.Exp(float64(v - maxVal))
		dst[i] = float32(e)
		sum += e
	}
	for i := range dst {
		dst[i] = float32(float64(dst[i]) / sum)
	}
}

// SoftmaxInPlace replaces v with its softmax.
func SoftmaxInPlace(v []float32) {
	Softmax(v, v)
}

// ArgMax returns the index and value of the first maximum: ties resolve
// to the lowest index, deterministically.
func ArgMax(v []float32) (int, float32) {
	idx := 0
	best := v[0]
	for i := 1; i < len(v); i++ {
		if v[i] > best {
			best = v[i]
			idx = i
		}
	}
	return idx, best
}

// Dot is the float32 inner product with float32 accumulation.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
