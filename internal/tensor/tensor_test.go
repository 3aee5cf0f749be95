package tensor

import (
	"math"
	"testing"
)

func almostEqual(a, b float32, tol float64) bool {
	return math.Abs(float64(a)-float64(b)) <= tol
}

func TestMatrixContiguousViews(t *testing.T) {
	m := NewMatrix(3, 4)
	if len(m.Data) != 12 {
		t.Fatalf("expected backing block of 12, got %d", len(m.Data))
	}
	m.Set(1, 2, 7.5)
	if m.At(1, 2) != 7.5 {
		t.Errorf("At(1,2) = %v, want 7.5", m.At(1, 2))
	}
	row := m.Row(1)
	row[2] = 9.25
	if m.Data[1*4+2] != 9.25 {
		t.Errorf("row view does not alias backing block")
	}
}

func TestTensor3Indexing(t *testing.T) {
	tr := NewTensor3(2, 3, 4)
	tr.Set(1, 2, 3, 5.0)
	if tr.At(1, 2, 3) != 5.0 {
		t.Errorf("At(1,2,3) = %v, want 5.0", tr.At(1, 2, 3))
	}
	sl := tr.Slice(1)
	if sl.Rows != 3 || sl.Cols != 4 {
		t.Fatalf("Slice(1) dims = (%d,%d), want (3,4)", sl.Rows, sl.Cols)
	}
	if sl.At(2, 3) != 5.0 {
		t.Errorf("slice view does not alias backing block")
	}
	row := tr.Row(1, 2)
	if row[3] != 5.0 {
		t.Errorf("Row(1,2)[3] = %v, want 5.0", row[3])
	}
}

func TestGELU(t *testing.T) {
	tests := []struct {
		in   float32
		want float64
	}{
		{0, 0},
		{1, 0.8413447460685429},
		{-1, -0.15865525393145707},
		{2, 1.9544997361036416},
	}
	for _, test := range tests {
		got := GELU(test.in)
		if !almostEqual(got, float32(test.want), 1e-6) {
			t.Errorf("GELU(%v) = %v, want %v", test.in, got, test.want)
		}
	}
}

func TestSoftmax(t *testing.T) {
	src := []float32{1, 2, 3}
	dst := make([]float32, 3)
	Softmax(dst, src)
	want := []float64{0.09003057317038046, 0.24472847105479767, 0.6652409557748219}
	var sum float64
	for i := range dst {
		if !almostEqual(dst[i], float32(want[i]), 1e-6) {
			t.Errorf("Softmax[%d] = %v, want %v", i, dst[i], want[i])
		}
		sum += float64(dst[i])
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("softmax sums to %v, want 1.0", sum)
	}
}

func TestSoftmaxWithSentinel(t *testing.T) {
	src := []float32{2.5, NegLogit, 1.0}
	dst := make([]float32, 3)
	Softmax(dst, src)
	if dst[1] != 0 {
		t.Errorf("sentinel position got probability %v, want 0", dst[1])
	}
	if dst[0] <= dst[2] {
		t.Errorf("expected dst[0] > dst[2], got %v <= %v", dst[0], dst[2])
	}
	var sum float64
	for _, v := range dst {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("softmax produced non-finite value %v", v)
		}
		sum += float64(v)
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("softmax sums to %v, want 1.0", sum)
	}
}

func TestArgMaxFirstMaximum(t *testing.T) {
	tests := []struct {
		name    string
		in      []float32
		wantIdx int
		wantVal float32
	}{
		{"single", []float32{4}, 0, 4},
		{"strict max", []float32{1, 5, 3}, 1, 5},
		{"tie picks lowest index", []float32{2, 7, 7, 7}, 1, 7},
		{"all equal", []float32{3, 3, 3}, 0, 3},
		{"sentinels ignored", []float32{NegLogit, -2, NegLogit}, 1, -2},
	}
	for _, test := range tests {
		idx, val := ArgMax(test.in)
		if idx != test.wantIdx || val != test.wantVal {
			t.Errorf("%s: ArgMax = (%d, %v), want (%d, %v)", test.name, idx, val, test.wantIdx, test.wantVal)
		}
	}
}

func TestSigmoidBounds(t *testing.T) {
	for _, x := range []float32{-50, -1, 0, 1, 50} {
		p := Sigmoid(x)
		if p < 0 || p > 1 {
			t.Errorf("Sigmoid(%v) = %v outside [0,1]", x, p)
		}
	}
	if !almostEqual(Sigmoid(0), 0.5, 1e-7) {
		t.Errorf("Sigmoid(0) = %v, want 0.5", Sigmoid(0))
	}
}

func TestSequenceMask(t *testing.T) {
	mask := SequenceMask(2, 5)
	want := []bool{true, true, false, false, false}
	for i := range want {
		if mask[i] != want[i] {
			t.Errorf("mask[%d] = %v, want %v", i, mask[i], want[i])
		}
	}
	// actual beyond max saturates
	mask = SequenceMask(9, 3)
	for i := range mask {
		if !mask[i] {
			t.Errorf("mask[%d] = false, want true when actual > max", i)
		}
	}
}

func TestMaskLogits(t *testing.T) {
	logits := []float32{1, 2, 3, 4}
	MaskLogitsByCount(logits, 2)
	if logits[0] != 1 || logits[1] != 2 {
		t.Errorf("valid positions were modified: %v", logits)
	}
	if logits[2] != NegLogit || logits[3] != NegLogit {
		t.Errorf("padded positions not sentinel: %v", logits)
	}

	logits = []float32{1, 2, 3}
	MaskLogitsByCount(logits, -1)
	for i, v := range logits {
		if v != NegLogit {
			t.Errorf("negative count should mask everything, logits[%d] = %v", i, v)
		}
	}
}

func TestMaskColsPerRow(t *testing.T) {
	m := NewMatrix(3, 4)
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			m.Set(i, j, float32(i*4+j+1))
		}
	}
	// row 2 has no count entry: fully masked
	MaskColsPerRow(m, []int{2, 4})
	for j := 2; j < 4; j++ {
		if m.At(0, j) != NegLogit {
			t.Errorf("row 0 col %d not masked", j)
		}
	}
	for j := 0; j < 4; j++ {
		if m.At(1, j) == NegLogit {
			t.Errorf("row 1 col %d wrongly masked", j)
		}
		if m.At(2, j) != NegLogit {
			t.Errorf("row 2 col %d not masked", j)
		}
	}
}

func TestMaskRowsByCount(t *testing.T) {
	m := NewMatrix(3, 2)
	m.Fill(1.5)
	MaskRowsByCount(m, 1)
	if m.At(0, 0) != 1.5 || m.At(0, 1) != 1.5 {
		t.Errorf("valid row was modified")
	}
	for i := 1; i < 3; i++ {
		for j := 0; j < 2; j++ {
			if m.At(i, j) != NegLogit {
				t.Errorf("padded row %d col %d not sentinel", i, j)
			}
		}
	}
}
