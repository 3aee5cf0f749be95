package tensor

// Matrix is a dense row-major float32 matrix. Data is one contiguous
// block; Row returns a view into it, so filling a matrix never allocates
// per row.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{
		Rows: rows,
		Cols: cols,
		Data: make([]float32, rows*cols),
	}
}

// MatrixFromData wraps an existing block without copying. len(data) must
// be rows*cols.
func MatrixFromData(rows, cols int, data []float32) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: data}
}

func (m *Matrix) At(i, j int) float32 {
	return m.Data[i*m.Cols+j]
}

func (m *Matrix) Set(i, j int, v float32) {
	m.Data[i*m.Cols+j] = v
}

func (m *Matrix) Row(i int) []float32 {
	start := i * m.Cols
	return m.Data[start : start+m.Cols]
}

func (m *Matrix) Fill(v float32) {
	for i := range m.Data {
		m.Data[i] = v
	}
}

// Clone copies the matrix including its backing block.
func (m *Matrix) Clone() *Matrix {
	out := NewMatrix(m.Rows, m.Cols)
	copy(out.Data, m.Data)
	return out
}

// Tensor3 is a dense row-major rank-3 tensor over one contiguous block.
type Tensor3 struct {
	D0   int
	D1   int
	D2   int
	Data []float32
}

func NewTensor3(d0, d1, d2 int) *Tensor3 {
	return &Tensor3{
		D0:   d0,
		D1:   d1,
		D2:   d2,
		Data: make([]float32, d0*d1*d2),
	}
}

func Tensor3FromData(d0, d1, d2 int, data []float32) *Tensor3 {
	return &Tensor3{D0: d0, D1: d1, D2: d2, Data: data}
}

func (t *Tensor3) At(i, j, k int) float32 {
	return t.Data[(i*t.D1+j)*t.D2+k]
}

func (t *Tensor3) Set(i, j, k int, v float32) {
	t.Data[(i*t.D1+j)*t.D2+k] = v
}

// Slice returns the i-th (D1, D2) matrix as a view into the block.
func (t *Tensor3) Slice(i int) *Matrix {
	start := i * t.D1 * t.D2
	return MatrixFromData(t.D1, t.D2, t.Data[start:start+t.D1*t.D2])
}

// Row returns the (i, j, :) vector as a view into the block.
func (t *Tensor3) Row(i, j int) []float32 {
	start := (i*t.D1 + j) * t.D2
	return t.Data[start : start+t.D2]
}
