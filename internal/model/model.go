package model

import (
	"fmt"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/config/enums"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/features"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/schema"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/tensor"
)

// RandomSpec seeds a fully random model: embedding tables and layer
// weights both derive from Seed.
type RandomSpec struct {
	NumServices int
	Seed        int64
}

// Config selects the embedding source and the layer weights. Exactly one
// of EmbeddingsPath, Random and Preloaded must be set; WeightsPath is
// required with the file and preloaded sources and must stay empty with
// Random.
type Config struct {
	Caps schema.Capacities
	Mode enums.StatusMode

	EmbeddingsPath string
	Random         *RandomSpec
	Preloaded      *schema.Embeddings

	WeightsPath string
}

// StateModel owns the frozen per-service tables and the trained scoring
// heads. It is immutable after construction; Forward is safe to call
// concurrently.
type StateModel struct {
	caps   schema.Capacities
	mode   enums.StatusMode
	emb    *schema.Embeddings
	params *Params
}

// NewStateModel validates the configuration and assembles the model.
func NewStateModel(cfg Config) (*StateModel, error) {
	if err := cfg.Caps.Validate(); err != nil {
		return nil, fmt.Errorf("state model: %w", err)
	}
	if !cfg.Mode.IsValid() {
		return nil, fmt.Errorf("state model: invalid status mode %q", cfg.Mode)
	}
	switch cfg.Mode {
	case enums.StatusModeTrailingDouble:
		if cfg.Caps.MaxSeqLength < 2 {
			return nil, fmt.Errorf("state model: mode %s needs at least 2 token positions", cfg.Mode)
		}
	case enums.StatusModeTrailingMulti:
		if cfg.Caps.MaxSeqLength < cfg.Caps.MaxNumTotalSlots() {
			return nil, fmt.Errorf("state model: mode %s needs %d token positions, have %d",
				cfg.Mode, cfg.Caps.MaxNumTotalSlots(), cfg.Caps.MaxSeqLength)
		}
	}

	sources := 0
	if cfg.EmbeddingsPath != "" {
		sources++
	}
	if cfg.Random != nil {
		sources++
	}
	if cfg.Preloaded != nil {
		sources++
	}
	if sources != 1 {
		return nil, fmt.Errorf("state model: exactly one embedding source required, got %d of {embeddings path, random init, preloaded tables}", sources)
	}

	var (
		emb    *schema.Embeddings
		params *Params
		err    error
	)
	switch {
	case cfg.Random != nil:
		if cfg.WeightsPath != "" {
			return nil, fmt.Errorf("state model: random init and a weights path are mutually exclusive")
		}
		if cfg.Random.NumServices <= 0 {
			return nil, fmt.Errorf("state model: random init needs a positive service count, got %d", cfg.Random.NumServices)
		}
		emb = schema.NewRandomEmbeddings(cfg.Caps, cfg.Random.NumServices, cfg.Random.Seed)
		params = NewRandomParams(cfg.Caps, cfg.Random.Seed+1)
	case cfg.EmbeddingsPath != "":
		emb, err = schema.LoadEmbeddings(cfg.EmbeddingsPath)
		if err != nil {
			return nil, fmt.Errorf("state model: %w", err)
		}
	default:
		emb = cfg.Preloaded
	}
	if emb.Caps != cfg.Caps {
		return nil, fmt.Errorf("state model: embedding capacities %+v do not match configured %+v", emb.Caps, cfg.Caps)
	}

	if params == nil {
		if cfg.WeightsPath == "" {
			return nil, fmt.Errorf("state model: weights path required unless random init is used")
		}
		params, err = LoadParams(cfg.WeightsPath, cfg.Caps, cfg.Mode)
		if err != nil {
			return nil, fmt.Errorf("state model: %w", err)
		}
	}
	if err := params.Validate(cfg.Caps.EmbeddingDim, cfg.Mode); err != nil {
		return nil, fmt.Errorf("state model: %w", err)
	}

	return &StateModel{caps: cfg.Caps, mode: cfg.Mode, emb: emb, params: params}, nil
}

func (m *StateModel) Capacities() schema.Capacities { return m.caps }
func (m *StateModel) Mode() enums.StatusMode        { return m.mode }
func (m *StateModel) NumServices() int              { return m.emb.NumServices() }

// Output carries one batch's logits, one row block per example in input
// order. Intent rows and categorical value cells are sentinel-masked;
// requested-slot logits stay raw with the validity mask alongside;
// status rows of padded slots are sentinel-masked so they decode to the
// none status deterministically.
type Output struct {
	BatchSize int

	IntentStatus  *tensor.Matrix // (B, MaxNumIntents+1)
	ReqSlotStatus *tensor.Matrix // (B, MaxNumTotalSlots)
	ReqSlotMask   [][]bool       // (B, MaxNumTotalSlots)

	CatSlotStatus *tensor.Tensor3 // (B, MaxNumCatSlots, 3)
	CatSlotValue  *tensor.Tensor3 // (B, MaxNumCatSlots, MaxNumValuesPerCatSlot)

	NoncatSlotStatus *tensor.Tensor3 // (B, MaxNumNoncatSlots, 3)
	NoncatSlotStart  *tensor.Tensor3 // (B, MaxNumNoncatSlots, MaxSeqLength)
	NoncatSlotEnd    *tensor.Tensor3 // (B, MaxNumNoncatSlots, MaxSeqLength)
}

// Forward scores one batch. Examples may span services; tables are
// looked up per example by service id.
func (m *StateModel) Forward(batch []*features.TurnExample) (*Output, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("state model: empty batch")
	}
	caps := m.caps
	out := &Output{
		BatchSize:        len(batch),
		IntentStatus:     tensor.NewMatrix(len(batch), caps.MaxNumIntents+1),
		ReqSlotStatus:    tensor.NewMatrix(len(batch), caps.MaxNumTotalSlots()),
		ReqSlotMask:      make([][]bool, len(batch)),
		CatSlotStatus:    tensor.NewTensor3(len(batch), caps.MaxNumCatSlots, 3),
		CatSlotValue:     tensor.NewTensor3(len(batch), caps.MaxNumCatSlots, caps.MaxNumValuesPerCatSlot),
		NoncatSlotStatus: tensor.NewTensor3(len(batch), caps.MaxNumNoncatSlots, 3),
		NoncatSlotStart:  tensor.NewTensor3(len(batch), caps.MaxNumNoncatSlots, caps.MaxSeqLength),
		NoncatSlotEnd:    tensor.NewTensor3(len(batch), caps.MaxNumNoncatSlots, caps.MaxSeqLength),
	}

	for i, ex := range batch {
		if len(ex.Pooled) != caps.EmbeddingDim {
			return nil, fmt.Errorf("state model: example %d pooled dim %d, want %d", i, len(ex.Pooled), caps.EmbeddingDim)
		}
		if ex.Tokens == nil || ex.Tokens.Rows != caps.MaxSeqLength || ex.Tokens.Cols != caps.EmbeddingDim {
			return nil, fmt.Errorf("state model: example %d token matrix shape mismatch", i)
		}
		svc, err := m.emb.ForService(ex.ServiceID)
		if err != nil {
			return nil, fmt.Errorf("state model: example %d: %w", i, err)
		}

		m.scoreIntents(out.IntentStatus.Row(i), ex, svc)
		out.ReqSlotMask[i] = m.scoreRequestedSlots(out.ReqSlotStatus.Row(i), ex, svc)
		m.scoreCatSlotValues(out.CatSlotValue.Slice(i), ex, svc)

		start, end := m.params.Span.Score(svc.NoncatSlots, ex.Tokens, ex.NumTokens)
		copy(out.NoncatSlotStart.Slice(i).Data, start.Data)
		copy(out.NoncatSlotEnd.Slice(i).Data, end.Data)

		catStatus, noncatStatus := m.scoreStatuses(ex, svc)
		tensor.MaskRowsByCount(catStatus, ex.NumCatSlots)
		tensor.MaskRowsByCount(noncatStatus, ex.NumNoncatSlots)
		copy(out.CatSlotStatus.Slice(i).Data, catStatus.Data)
		copy(out.NoncatSlotStatus.Slice(i).Data, noncatStatus.Data)
	}
	return out, nil
}

// scoreIntents prepends the trainable NONE vector, scores, and masks
// with count+1 so NONE stays valid for every example.
func (m *StateModel) scoreIntents(dst []float32, ex *features.TurnExample, svc *schema.ServiceEmbeddings) {
	caps := m.caps
	withNone := tensor.NewMatrix(caps.MaxNumIntents+1, caps.EmbeddingDim)
	copy(withNone.Row(0), m.params.NoneIntentVector)
	copy(withNone.Data[caps.EmbeddingDim:], svc.Intents.Data)

	logits := m.params.Intent.Score(ex.Pooled, withNone)
	for n := 0; n < logits.Rows; n++ {
		dst[n] = logits.At(n, 0)
	}
	tensor.MaskLogitsByCount(dst, ex.NumIntents+1)
}

// scoreRequestedSlots leaves logits raw; the caller decides with the
// mask because requested slots are thresholded, not argmaxed.
func (m *StateModel) scoreRequestedSlots(dst []float32, ex *features.TurnExample, svc *schema.ServiceEmbeddings) []bool {
	logits := m.params.RequestedSlots.Score(ex.Pooled, svc.ReqSlots)
	for n := 0; n < logits.Rows; n++ {
		dst[n] = logits.At(n, 0)
	}
	return tensor.SequenceMask(ex.NumSlots, m.caps.MaxNumTotalSlots())
}

func (m *StateModel) scoreCatSlotValues(dst *tensor.Matrix, ex *features.TurnExample, svc *schema.ServiceEmbeddings) {
	caps := m.caps
	flat := tensor.MatrixFromData(caps.MaxNumCatSlots*caps.MaxNumValuesPerCatSlot, caps.EmbeddingDim, svc.CatValues.Data)
	logits := m.params.CatSlotValue.Score(ex.Pooled, flat)
	for n := 0; n < logits.Rows; n++ {
		dst.Data[n] = logits.At(n, 0)
	}
	tensor.MaskColsPerRow(dst, ex.NumCatSlotValues)
}

func (m *StateModel) scoreStatuses(ex *features.TurnExample, svc *schema.ServiceEmbeddings) (*tensor.Matrix, *tensor.Matrix) {
	caps := m.caps
	switch m.mode {
	case enums.StatusModePooled:
		cat := m.params.CatStatusWeighted.Score(ex.Pooled, svc.CatSlots, svc.CatStatusWeights)
		noncat := m.params.NoncatStatus.Score(ex.Pooled, svc.NoncatSlots)
		return cat, noncat
	case enums.StatusModeTrailingSingle:
		last := ex.Tokens.Row(caps.MaxSeqLength - 1)
		return m.params.CatStatus.Score(last, svc.CatSlots), m.params.NoncatStatus.Score(last, svc.NoncatSlots)
	case enums.StatusModeTrailingDouble:
		cat := m.params.CatStatus.Score(ex.Tokens.Row(caps.MaxSeqLength-2), svc.CatSlots)
		noncat := m.params.NoncatStatus.Score(ex.Tokens.Row(caps.MaxSeqLength-1), svc.NoncatSlots)
		return cat, noncat
	default: // trailing_multi, validated at construction
		total := caps.MaxNumTotalSlots()
		dim := caps.EmbeddingDim
		statusTokens := tensor.MatrixFromData(total, dim,
			ex.Tokens.Data[(caps.MaxSeqLength-total)*dim:])
		allSlots := tensor.NewMatrix(total, dim)
		copy(allSlots.Data, svc.CatSlots.Data)
		copy(allSlots.Data[caps.MaxNumCatSlots*dim:], svc.NoncatSlots.Data)

		statuses := m.params.StatusToken.Score(statusTokens, allSlots)
		cat := tensor.NewMatrix(caps.MaxNumCatSlots, 3)
		copy(cat.Data, statuses.Data[:caps.MaxNumCatSlots*3])
		noncat := tensor.NewMatrix(caps.MaxNumNoncatSlots, 3)
		copy(noncat.Data, statuses.Data[caps.MaxNumCatSlots*3:])
		return cat, noncat
	}
}
