package tensor

import "math"

// NegLogit is the sentinel written into logits of padded elements. Large
// enough that no real logit competes in an argmax, small enough that
// softmax exponentials stay finite.
const NegLogit = float32(-0.7 * math.MaxFloat32)

// SequenceMask reports element validity for a padded axis of size max:
// mask[i] = i < actual.
func SequenceMask(actual, max int) []bool {
	mask := make([]bool, max)
	for i := 0; i < max && i < actual; i++ {
		mask[i] = true
	}
	return mask
}

// MaskLogits overwrites logits at padded positions with the sentinel.
// Positions with mask[i] true are left untouched.
func MaskLogits(logits []float32, mask []bool) {
	for i := range logits {
		if !mask[i] {
			logits[i] = NegLogit
		}
	}
}

// MaskLogitsByCount is MaskLogits for prefix validity: positions at or
// beyond actual get the sentinel.
func MaskLogitsByCount(logits []float32, actual int) {
	if actual < 0 {
		actual = 0
	}
	for i := actual; i < len(logits); i++ {
		logits[i] = NegLogit
	}
}

// MaskRowsByCount masks whole rows at or beyond actual: every class of a
// padded row gets the sentinel.
func MaskRowsByCount(m *Matrix, actual int) {
	for i := actual; i < m.Rows; i++ {
		row := m.Row(i)
		for j := range row {
			row[j] = NegLogit
		}
	}
}

// MaskColsPerRow masks each row's columns at or beyond its own count.
// Rows beyond len(counts) are fully masked.
func MaskColsPerRow(m *Matrix, counts []int) {
	for i := 0; i < m.Rows; i++ {
		actual := 0
		if i < len(counts) {
			actual = counts[i]
		}
		MaskLogitsByCount(m.Row(i), actual)
	}
}

// MaskColsByCount masks columns at or beyond actual in every row. Used
// for token axes where validity is shared across rows.
func MaskColsByCount(m *Matrix, actual int) {
	for i := 0; i < m.Rows; i++ {
		MaskLogitsByCount(m.Row(i), actual)
	}
}
