package model

import (
	"fmt"
	"math/rand"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/config/enums"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/schema"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/tensor"
)

// Layer-weights archive entry names. Each dense layer stores
// "<head>/<layer>/weight" with dims (In, Out) plus a matching bias.
const (
	tensorNoneIntentVector = "none_intent_vector"

	headIntent            = "intent"
	headRequestedSlots    = "requested_slots"
	headCatSlotValue      = "cat_slot_value"
	headCatStatus         = "cat_slot_status"
	headCatStatusWeighted = "cat_slot_status_weighted"
	headNoncatStatus      = "noncat_slot_status"
	headSpan              = "noncat_span"
	headStatusToken       = "slot_status_token"

	layerProj   = "utterance_proj"
	layerHidden = "layer1"
	layerOut    = "layer2"
)

func layerTensorName(head, layer, part string) string {
	return head + "/" + layer + "/" + part
}

// Params are the trained scoring heads of one model checkpoint. Heads a
// status mode does not use stay nil.
type Params struct {
	NoneIntentVector []float32

	Intent         *ElementScorer
	RequestedSlots *ElementScorer
	CatSlotValue   *ElementScorer

	CatStatusWeighted *WeightedElementScorer
	CatStatus         *ElementScorer
	NoncatStatus      *ElementScorer

	Span        *SpanScorer
	StatusToken *StatusTokenHead
}

// Validate checks that every head the status mode dispatches to is
// present.
func (p *Params) Validate(dim int, mode enums.StatusMode) error {
	if len(p.NoneIntentVector) != dim {
		return fmt.Errorf("params: none intent vector has %d dims, want %d", len(p.NoneIntentVector), dim)
	}
	if p.Intent == nil || p.RequestedSlots == nil || p.CatSlotValue == nil || p.Span == nil {
		return fmt.Errorf("params: missing a core scoring head")
	}
	switch mode {
	case enums.StatusModePooled:
		if p.CatStatusWeighted == nil || p.NoncatStatus == nil {
			return fmt.Errorf("params: status mode %s needs the weighted categorical head and the non-categorical head", mode)
		}
	case enums.StatusModeTrailingSingle, enums.StatusModeTrailingDouble:
		if p.CatStatus == nil || p.NoncatStatus == nil {
			return fmt.Errorf("params: status mode %s needs both per-family status heads", mode)
		}
	case enums.StatusModeTrailingMulti:
		if p.StatusToken == nil {
			return fmt.Errorf("params: status mode %s needs the status token head", mode)
		}
	default:
		return fmt.Errorf("params: unknown status mode %s", mode)
	}
	return nil
}

type paramsReader struct {
	tensors map[string]*schema.NamedTensor
	path    string
	err     error
}

func (r *paramsReader) dense(head, layer string, in, out int) *Dense {
	if r.err != nil {
		return nil
	}
	weightName := layerTensorName(head, layer, "weight")
	weight, err := schema.RequireTensor(r.tensors, weightName, in, out)
	if err != nil {
		r.err = fmt.Errorf("weights %s: %w", r.path, err)
		return nil
	}
	bias, err := schema.RequireTensor(r.tensors, layerTensorName(head, layer, "bias"), out)
	if err != nil {
		r.err = fmt.Errorf("weights %s: %w", r.path, err)
		return nil
	}
	d, err := NewDense(tensor.MatrixFromData(in, out, weight.Data), bias.Data)
	if err != nil {
		r.err = fmt.Errorf("weights %s: %s: %w", r.path, weightName, err)
	}
	return d
}

func (r *paramsReader) elementScorer(head string, dim, classes int) *ElementScorer {
	proj := r.dense(head, layerProj, dim, dim)
	hidden := r.dense(head, layerHidden, 2*dim, dim)
	out := r.dense(head, layerOut, dim, classes)
	if r.err != nil {
		return nil
	}
	s, err := NewElementScorer(proj, hidden, out, dim)
	if err != nil {
		r.err = fmt.Errorf("weights %s: head %s: %w", r.path, head, err)
	}
	return s
}

func (r *paramsReader) has(head string) bool {
	_, ok := r.tensors[layerTensorName(head, layerProj, "weight")]
	if !ok {
		_, ok = r.tensors[layerTensorName(head, layerHidden, "weight")]
	}
	return ok
}

// LoadParams reads a layer-weights archive. Heads required by the mode
// must be present; other heads load when present so one checkpoint can
// serve several modes.
func LoadParams(path string, caps schema.Capacities, mode enums.StatusMode) (*Params, error) {
	tensors, _, err := schema.ReadTensorFile(path)
	if err != nil {
		return nil, err
	}
	dim := caps.EmbeddingDim
	r := &paramsReader{tensors: tensors, path: path}

	none, err := schema.RequireTensor(tensors, tensorNoneIntentVector, dim)
	if err != nil {
		return nil, fmt.Errorf("weights %s: %w", path, err)
	}

	p := &Params{NoneIntentVector: none.Data}
	p.Intent = r.elementScorer(headIntent, dim, 1)
	p.RequestedSlots = r.elementScorer(headRequestedSlots, dim, 1)
	p.CatSlotValue = r.elementScorer(headCatSlotValue, dim, 1)

	spanHidden := r.dense(headSpan, layerHidden, 2*dim, dim)
	spanOut := r.dense(headSpan, layerOut, dim, 2)
	if r.err == nil {
		p.Span, err = NewSpanScorer(spanHidden, spanOut, dim)
		if err != nil {
			return nil, fmt.Errorf("weights %s: %w", path, err)
		}
	}

	if r.has(headCatStatusWeighted) {
		proj := r.dense(headCatStatusWeighted, layerProj, dim, dim)
		if r.err == nil {
			p.CatStatusWeighted, err = NewWeightedElementScorer(proj, dim)
			if err != nil {
				return nil, fmt.Errorf("weights %s: %w", path, err)
			}
		}
	}
	if r.has(headCatStatus) {
		p.CatStatus = r.elementScorer(headCatStatus, dim, 3)
	}
	if r.has(headNoncatStatus) {
		p.NoncatStatus = r.elementScorer(headNoncatStatus, dim, 3)
	}
	if r.has(headStatusToken) {
		hidden := r.dense(headStatusToken, layerHidden, 2*dim, dim)
		out := r.dense(headStatusToken, layerOut, dim, 3)
		if r.err == nil {
			p.StatusToken, err = NewStatusTokenHead(hidden, out, dim)
			if err != nil {
				return nil, fmt.Errorf("weights %s: %w", path, err)
			}
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := p.Validate(dim, mode); err != nil {
		return nil, fmt.Errorf("weights %s: %w", path, err)
	}
	return p, nil
}

func appendDense(tensors []schema.NamedTensor, head, layer string, d *Dense) []schema.NamedTensor {
	return append(tensors,
		schema.NamedTensor{
			Name: layerTensorName(head, layer, "weight"),
			Dims: []int{d.In(), d.Out()},
			Data: d.Weight.Data,
		},
		schema.NamedTensor{
			Name: layerTensorName(head, layer, "bias"),
			Dims: []int{d.Out()},
			Data: d.Bias,
		},
	)
}

func appendElementScorer(tensors []schema.NamedTensor, head string, s *ElementScorer) []schema.NamedTensor {
	tensors = appendDense(tensors, head, layerProj, s.Proj)
	tensors = appendDense(tensors, head, layerHidden, s.Hidden)
	return appendDense(tensors, head, layerOut, s.Out)
}

// SaveParams writes the archive LoadParams reads, covering whichever
// heads are present.
func SaveParams(path string, precision enums.Precision, p *Params) error {
	dim := len(p.NoneIntentVector)
	tensors := []schema.NamedTensor{
		{Name: tensorNoneIntentVector, Dims: []int{dim}, Data: p.NoneIntentVector},
	}
	tensors = appendElementScorer(tensors, headIntent, p.Intent)
	tensors = appendElementScorer(tensors, headRequestedSlots, p.RequestedSlots)
	tensors = appendElementScorer(tensors, headCatSlotValue, p.CatSlotValue)
	tensors = appendDense(tensors, headSpan, layerHidden, p.Span.Hidden)
	tensors = appendDense(tensors, headSpan, layerOut, p.Span.Out)

	if p.CatStatusWeighted != nil {
		tensors = appendDense(tensors, headCatStatusWeighted, layerProj, p.CatStatusWeighted.Proj)
	}
	if p.CatStatus != nil {
		tensors = appendElementScorer(tensors, headCatStatus, p.CatStatus)
	}
	if p.NoncatStatus != nil {
		tensors = appendElementScorer(tensors, headNoncatStatus, p.NoncatStatus)
	}
	if p.StatusToken != nil {
		tensors = appendDense(tensors, headStatusToken, layerHidden, p.StatusToken.Hidden)
		tensors = appendDense(tensors, headStatusToken, layerOut, p.StatusToken.Out)
	}
	return schema.WriteTensorFile(path, precision, tensors)
}

// NewRandomParams builds a deterministic full head set, every strategy
// included, for the random-init source and tests.
func NewRandomParams(caps schema.Capacities, seed int64) *Params {
	rng := rand.New(rand.NewSource(seed))
	dim := caps.EmbeddingDim
	randomDense := func(in, out int) *Dense {
		w := tensor.NewMatrix(in, out)
		for i := range w.Data {
			w.Data[i] = float32(rng.NormFloat64() * 0.02)
		}
		b := make([]float32, out)
		for i := range b {
			b[i] = float32(rng.NormFloat64() * 0.02)
		}
		d, err := NewDense(w, b)
		if err != nil {
			panic(err)
		}
		return d
	}
	randomScorer := func(classes int) *ElementScorer {
		s, err := NewElementScorer(randomDense(dim, dim), randomDense(2*dim, dim), randomDense(dim, classes), dim)
		if err != nil {
			panic(err)
		}
		return s
	}

	none := make([]float32, dim)
	for i := range none {
		none[i] = float32(rng.NormFloat64() * 0.02)
	}

	weighted, err := NewWeightedElementScorer(randomDense(dim, dim), dim)
	if err != nil {
		panic(err)
	}
	span, err := NewSpanScorer(randomDense(2*dim, dim), randomDense(dim, 2), dim)
	if err != nil {
		panic(err)
	}
	statusToken, err := NewStatusTokenHead(randomDense(2*dim, dim), randomDense(dim, 3), dim)
	if err != nil {
		panic(err)
	}

	return &Params{
		NoneIntentVector:  none,
		Intent:            randomScorer(1),
		RequestedSlots:    randomScorer(1),
		CatSlotValue:      randomScorer(1),
		CatStatusWeighted: weighted,
		CatStatus:         randomScorer(3),
		NoncatStatus:      randomScorer(3),
		Span:              span,
		StatusToken:       statusToken,
	}
}
