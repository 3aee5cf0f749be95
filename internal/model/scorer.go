package model

import (
	"fmt"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/tensor"
)

// Dense is one linear layer. Weight is row-major (In, Out) so applying
// an input accumulates full weight rows, keeping the inner loop
// sequential over the backing block.
type Dense struct {
	Weight *tensor.Matrix
	Bias   []float32
}

func NewDense(weight *tensor.Matrix, bias []float32) (*Dense, error) {
	if weight == nil {
		return nil, fmt.Errorf("dense layer: nil weight")
	}
	if len(bias) != weight.Cols {
		return nil, fmt.Errorf("dense layer: bias size %d does not match %d outputs", len(bias), weight.Cols)
	}
	return &Dense{Weight: weight, Bias: bias}, nil
}

func (d *Dense) In() int  { return d.Weight.Rows }
func (d *Dense) Out() int { return d.Weight.Cols }

// Apply computes dst = src * Weight + Bias. len(src) must equal In and
// len(dst) must equal Out.
func (d *Dense) Apply(dst, src []float32) {
	copy(dst, d.Bias)
	d.accumulate(dst, src, 0)
}

// ApplyHalves scores the concatenation [a; b] without materializing it.
func (d *Dense) ApplyHalves(dst, a, b []float32) {
	copy(dst, d.Bias)
	d.accumulate(dst, a, 0)
	d.accumulate(dst, b, len(a))
}

func (d *Dense) accumulate(dst, src []float32, from int) {
	for i, v := range src {
		row := d.Weight.Row(from + i)
		for o, w := range row {
			dst[o] += v * w
		}
	}
}

// ElementScorer conditions a set of candidate element embeddings on one
// utterance vector: proj+GELU the utterance, concat with each candidate,
// then a two-layer head.
type ElementScorer struct {
	Proj   *Dense // (D, D)
	Hidden *Dense // (2D, D)
	Out    *Dense // (D, C)
}

func NewElementScorer(proj, hidden, out *Dense, dim int) (*ElementScorer, error) {
	if proj.In() != dim || proj.Out() != dim {
		return nil, fmt.Errorf("element scorer: projection is (%d,%d), want (%d,%d)", proj.In(), proj.Out(), dim, dim)
	}
	if hidden.In() != 2*dim || hidden.Out() != dim {
		return nil, fmt.Errorf("element scorer: hidden layer is (%d,%d), want (%d,%d)", hidden.In(), hidden.Out(), 2*dim, dim)
	}
	if out.In() != dim {
		return nil, fmt.Errorf("element scorer: output layer takes %d features, want %d", out.In(), dim)
	}
	return &ElementScorer{Proj: proj, Hidden: hidden, Out: out}, nil
}

func (s *ElementScorer) NumClasses() int { return s.Out.Out() }

// Score produces (N, C) logits for N candidate embeddings.
func (s *ElementScorer) Score(utterance []float32, elements *tensor.Matrix) *tensor.Matrix {
	dim := s.Proj.Out()
	projected := make([]float32, dim)
	s.Proj.Apply(projected, utterance)
	tensor.GELUInPlace(projected)

	logits := tensor.NewMatrix(elements.Rows, s.NumClasses())
	hidden := make([]float32, dim)
	for n := 0; n < elements.Rows; n++ {
		s.Hidden.ApplyHalves(hidden, projected, elements.Row(n))
		tensor.GELUInPlace(hidden)
		s.Out.Apply(logits.Row(n), hidden)
	}
	return logits
}

// WeightedElementScorer replaces the two-layer head with per-candidate
// weight tensors, so one service-specific head can score every candidate
// without materializing a full MLP per candidate.
type WeightedElementScorer struct {
	Proj *Dense // (D, D)
}

func NewWeightedElementScorer(proj *Dense, dim int) (*WeightedElementScorer, error) {
	if proj.In() != dim || proj.Out() != dim {
		return nil, fmt.Errorf("weighted element scorer: projection is (%d,%d), want (%d,%d)",
			proj.In(), proj.Out(), dim, dim)
	}
	return &WeightedElementScorer{Proj: proj}, nil
}

// Score produces (N, C) logits: logit[n][c] = sum_k feat[n][k] *
// weights[n][k][c] with feat = [projected utterance; element].
func (s *WeightedElementScorer) Score(utterance []float32, elements *tensor.Matrix, weights *tensor.Tensor3) *tensor.Matrix {
	dim := s.Proj.Out()
	feat := make([]float32, 2*dim)
	s.Proj.Apply(feat[:dim], utterance)
	tensor.GELUInPlace(feat[:dim])

	classes := weights.D2
	logits := tensor.NewMatrix(elements.Rows, classes)
	for n := 0; n < elements.Rows; n++ {
		copy(feat[dim:], elements.Row(n))
		out := logits.Row(n)
		for k, v := range feat {
			w := weights.Row(n, k)
			for c := range out {
				out[c] += v * w[c]
			}
		}
	}
	return logits
}

// SpanScorer emits start and end logits over every token position for
// each slot. The hidden layer over [slot; token] splits into a slot half
// (with bias) and a token half, each computed once.
type SpanScorer struct {
	Hidden *Dense // (2D, D)
	Out    *Dense // (D, 2)
}

func NewSpanScorer(hidden, out *Dense, dim int) (*SpanScorer, error) {
	if hidden.In() != 2*dim || hidden.Out() != dim {
		return nil, fmt.Errorf("span scorer: hidden layer is (%d,%d), want (%d,%d)", hidden.In(), hidden.Out(), 2*dim, dim)
	}
	if out.In() != dim || out.Out() != 2 {
		return nil, fmt.Errorf("span scorer: output layer is (%d,%d), want (%d,2)", out.In(), out.Out(), dim)
	}
	return &SpanScorer{Hidden: hidden, Out: out}, nil
}

// Score returns (S, T) start logits and (S, T) end logits. Token columns
// at or beyond numTokens carry the sentinel in both tensors.
func (s *SpanScorer) Score(slots, tokens *tensor.Matrix, numTokens int) (*tensor.Matrix, *tensor.Matrix) {
	dim := s.Hidden.Out()
	numSlots, numPositions := slots.Rows, tokens.Rows

	slotPart := tensor.NewMatrix(numSlots, dim)
	for i := 0; i < numSlots; i++ {
		row := slotPart.Row(i)
		copy(row, s.Hidden.Bias)
		s.Hidden.accumulate(row, slots.Row(i), 0)
	}
	tokenPart := tensor.NewMatrix(numPositions, dim)
	for t := 0; t < numPositions; t++ {
		s.Hidden.accumulate(tokenPart.Row(t), tokens.Row(t), slots.Cols)
	}

	start := tensor.NewMatrix(numSlots, numPositions)
	end := tensor.NewMatrix(numSlots, numPositions)
	hidden := make([]float32, dim)
	pair := make([]float32, 2)
	for i := 0; i < numSlots; i++ {
		sp := slotPart.Row(i)
		for t := 0; t < numPositions; t++ {
			tp := tokenPart.Row(t)
			for k := range hidden {
				hidden[k] = sp[k] + tp[k]
			}
			tensor.GELUInPlace(hidden)
			s.Out.Apply(pair, hidden)
			start.Set(i, t, pair[0])
			end.Set(i, t, pair[1])
		}
	}

	tensor.MaskColsByCount(start, numTokens)
	tensor.MaskColsByCount(end, numTokens)
	return start, end
}

// StatusTokenHead scores slot statuses from dedicated trailing token
// positions: row i pairs the i-th status token with the i-th slot
// embedding, [token; slot] through a two-layer head with 3 classes.
type StatusTokenHead struct {
	Hidden *Dense // (2D, D)
	Out    *Dense // (D, 3)
}

func NewStatusTokenHead(hidden, out *Dense, dim int) (*StatusTokenHead, error) {
	if hidden.In() != 2*dim || hidden.Out() != dim {
		return nil, fmt.Errorf("status token head: hidden layer is (%d,%d), want (%d,%d)",
			hidden.In(), hidden.Out(), 2*dim, dim)
	}
	if out.In() != dim || out.Out() != 3 {
		return nil, fmt.Errorf("status token head: output layer is (%d,%d), want (%d,3)", out.In(), out.Out(), dim)
	}
	return &StatusTokenHead{Hidden: hidden, Out: out}, nil
}

// Score produces (N, 3) status logits for N (status token, slot) rows.
func (h *StatusTokenHead) Score(statusTokens, slots *tensor.Matrix) *tensor.Matrix {
	dim := h.Hidden.Out()
	logits := tensor.NewMatrix(slots.Rows, 3)
	hidden := make([]float32, dim)
	for i := 0; i < slots.Rows; i++ {
		h.Hidden.ApplyHalves(hidden, statusTokens.Row(i), slots.Row(i))
		tensor.GELUInPlace(hidden)
		h.Out.Apply(logits.Row(i), hidden)
	}
	return logits
}
