package schema

import (
	"fmt"
	"math/rand"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/config/enums"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/tensor"
)

const (
	metaCapacitiesTensor  = "meta/capacities"
	metaNumServicesTensor = "meta/num_services"

	fieldIntentEmb           = "intent_emb"
	fieldCatSlotEmb          = "cat_slot_emb"
	fieldCatValueEmb         = "cat_slot_value_emb"
	fieldNoncatSlotEmb       = "noncat_slot_emb"
	fieldReqSlotEmb          = "req_slot_emb"
	fieldCatStatusWeights    = "cat_slot_status_weights"
	fieldNoncatStatusWeights = "noncat_slot_status_weights"

	numStatusClasses = 3
)

func serviceTensorName(id int, field string) string {
	return fmt.Sprintf("service/%d/%s", id, field)
}

// ServiceEmbeddings are the frozen schema-element representations of one
// service. Rows beyond the service's actual element counts are zero
// padding; masking keeps them out of every decision.
type ServiceEmbeddings struct {
	ServiceID int

	Intents     *tensor.Matrix  // (MaxNumIntents, D)
	CatSlots    *tensor.Matrix  // (MaxNumCatSlots, D)
	CatValues   *tensor.Tensor3 // (MaxNumCatSlots, MaxNumValuesPerCatSlot, D)
	NoncatSlots *tensor.Matrix  // (MaxNumNoncatSlots, D)
	ReqSlots    *tensor.Matrix  // (MaxNumTotalSlots, D)

	CatStatusWeights    *tensor.Tensor3 // (MaxNumCatSlots, 2D, 3)
	NoncatStatusWeights *tensor.Tensor3 // (MaxNumNoncatSlots, 2D, 3)
}

// Embeddings holds every service's tables, indexed by service id.
type Embeddings struct {
	Caps     Capacities
	Services []*ServiceEmbeddings
}

func (e *Embeddings) NumServices() int {
	return len(e.Services)
}

func (e *Embeddings) ForService(id int) (*ServiceEmbeddings, error) {
	if id < 0 || id >= len(e.Services) {
		return nil, fmt.Errorf("service id %d out of range, have %d services", id, len(e.Services))
	}
	return e.Services[id], nil
}

// LoadEmbeddings reads a schema-embeddings archive written by
// SaveEmbeddings (or the offline export pipeline).
func LoadEmbeddings(path string) (*Embeddings, error) {
	tensors, _, err := ReadTensorFile(path)
	if err != nil {
		return nil, err
	}

	meta, err := RequireTensor(tensors, metaCapacitiesTensor, 6)
	if err != nil {
		return nil, fmt.Errorf("embeddings %s: %w", path, err)
	}
	caps := Capacities{
		MaxNumIntents:          int(meta.Data[0]),
		MaxNumCatSlots:         int(meta.Data[1]),
		MaxNumNoncatSlots:      int(meta.Data[2]),
		MaxNumValuesPerCatSlot: int(meta.Data[3]),
		MaxSeqLength:           int(meta.Data[4]),
		EmbeddingDim:           int(meta.Data[5]),
	}
	if err := caps.Validate(); err != nil {
		return nil, fmt.Errorf("embeddings %s: %w", path, err)
	}
	countT, err := RequireTensor(tensors, metaNumServicesTensor, 1)
	if err != nil {
		return nil, fmt.Errorf("embeddings %s: %w", path, err)
	}
	numServices := int(countT.Data[0])
	if numServices <= 0 {
		return nil, fmt.Errorf("embeddings %s: num_services is %d", path, numServices)
	}

	d := caps.EmbeddingDim
	emb := &Embeddings{Caps: caps, Services: make([]*ServiceEmbeddings, numServices)}
	for id := 0; id < numServices; id++ {
		intents, err := RequireTensor(tensors, serviceTensorName(id, fieldIntentEmb), caps.MaxNumIntents, d)
		if err != nil {
			return nil, fmt.Errorf("embeddings %s service %d: %w", path, id, err)
		}
		catSlots, err := RequireTensor(tensors, serviceTensorName(id, fieldCatSlotEmb), caps.MaxNumCatSlots, d)
		if err != nil {
			return nil, fmt.Errorf("embeddings %s service %d: %w", path, id, err)
		}
		catValues, err := RequireTensor(tensors, serviceTensorName(id, fieldCatValueEmb),
			caps.MaxNumCatSlots, caps.MaxNumValuesPerCatSlot, d)
		if err != nil {
			return nil, fmt.Errorf("embeddings %s service %d: %w", path, id, err)
		}
		noncatSlots, err := RequireTensor(tensors, serviceTensorName(id, fieldNoncatSlotEmb), caps.MaxNumNoncatSlots, d)
		if err != nil {
			return nil, fmt.Errorf("embeddings %s service %d: %w", path, id, err)
		}
		reqSlots, err := RequireTensor(tensors, serviceTensorName(id, fieldReqSlotEmb), caps.MaxNumTotalSlots(), d)
		if err != nil {
			return nil, fmt.Errorf("embeddings %s service %d: %w", path, id, err)
		}
		catWeights, err := RequireTensor(tensors, serviceTensorName(id, fieldCatStatusWeights),
			caps.MaxNumCatSlots, 2*d, numStatusClasses)
		if err != nil {
			return nil, fmt.Errorf("embeddings %s service %d: %w", path, id, err)
		}
		noncatWeights, err := RequireTensor(tensors, serviceTensorName(id, fieldNoncatStatusWeights),
			caps.MaxNumNoncatSlots, 2*d, numStatusClasses)
		if err != nil {
			return nil, fmt.Errorf("embeddings %s service %d: %w", path, id, err)
		}

		emb.Services[id] = &ServiceEmbeddings{
			ServiceID:           id,
			Intents:             tensor.MatrixFromData(caps.MaxNumIntents, d, intents.Data),
			CatSlots:            tensor.MatrixFromData(caps.MaxNumCatSlots, d, catSlots.Data),
			CatValues:           tensor.Tensor3FromData(caps.MaxNumCatSlots, caps.MaxNumValuesPerCatSlot, d, catValues.Data),
			NoncatSlots:         tensor.MatrixFromData(caps.MaxNumNoncatSlots, d, noncatSlots.Data),
			ReqSlots:            tensor.MatrixFromData(caps.MaxNumTotalSlots(), d, reqSlots.Data),
			CatStatusWeights:    tensor.Tensor3FromData(caps.MaxNumCatSlots, 2*d, numStatusClasses, catWeights.Data),
			NoncatStatusWeights: tensor.Tensor3FromData(caps.MaxNumNoncatSlots, 2*d, numStatusClasses, noncatWeights.Data),
		}
	}
	return emb, nil
}

// SaveEmbeddings writes the archive LoadEmbeddings reads.
func SaveEmbeddings(path string, precision enums.Precision, emb *Embeddings) error {
	caps := emb.Caps
	tensors := make([]NamedTensor, 0, 2+7*len(emb.Services))
	tensors = append(tensors, NamedTensor{
		Name: metaCapacitiesTensor,
		Dims: []int{6},
		Data: []float32{
			float32(caps.MaxNumIntents),
			float32(caps.MaxNumCatSlots),
			float32(caps.MaxNumNoncatSlots),
			float32(caps.MaxNumValuesPerCatSlot),
			float32(caps.MaxSeqLength),
			float32(caps.EmbeddingDim),
		},
	})
	tensors = append(tensors, NamedTensor{
		Name: metaNumServicesTensor,
		Dims: []int{1},
		Data: []float32{float32(len(emb.Services))},
	})

	d := caps.EmbeddingDim
	for id, svc := range emb.Services {
		tensors = append(tensors,
			NamedTensor{Name: serviceTensorName(id, fieldIntentEmb), Dims: []int{caps.MaxNumIntents, d}, Data: svc.Intents.Data},
			NamedTensor{Name: serviceTensorName(id, fieldCatSlotEmb), Dims: []int{caps.MaxNumCatSlots, d}, Data: svc.CatSlots.Data},
			NamedTensor{Name: serviceTensorName(id, fieldCatValueEmb), Dims: []int{caps.MaxNumCatSlots, caps.MaxNumValuesPerCatSlot, d}, Data: svc.CatValues.Data},
			NamedTensor{Name: serviceTensorName(id, fieldNoncatSlotEmb), Dims: []int{caps.MaxNumNoncatSlots, d}, Data: svc.NoncatSlots.Data},
			NamedTensor{Name: serviceTensorName(id, fieldReqSlotEmb), Dims: []int{caps.MaxNumTotalSlots(), d}, Data: svc.ReqSlots.Data},
			NamedTensor{Name: serviceTensorName(id, fieldCatStatusWeights), Dims: []int{caps.MaxNumCatSlots, 2 * d, numStatusClasses}, Data: svc.CatStatusWeights.Data},
			NamedTensor{Name: serviceTensorName(id, fieldNoncatStatusWeights), Dims: []int{caps.MaxNumNoncatSlots, 2 * d, numStatusClasses}, Data: svc.NoncatStatusWeights.Data},
		)
	}
	return WriteTensorFile(path, precision, tensors)
}

// NewRandomEmbeddings builds deterministic pseudo-random tables, used by
// the random-init model source and tests.
func NewRandomEmbeddings(caps Capacities, numServices int, seed int64) *Embeddings {
	rng := rand.New(rand.NewSource(seed))
	d := caps.EmbeddingDim
	fill := func(data []float32) {
		for i := range data {
			data[i] = float32(rng.NormFloat64() * 0.02)
		}
	}

	emb := &Embeddings{Caps: caps, Services: make([]*ServiceEmbeddings, numServices)}
	for id := 0; id < numServices; id++ {
		svc := &ServiceEmbeddings{
			ServiceID:           id,
			Intents:             tensor.NewMatrix(caps.MaxNumIntents, d),
			CatSlots:            tensor.NewMatrix(caps.MaxNumCatSlots, d),
			CatValues:           tensor.NewTensor3(caps.MaxNumCatSlots, caps.MaxNumValuesPerCatSlot, d),
			NoncatSlots:         tensor.NewMatrix(caps.MaxNumNoncatSlots, d),
			ReqSlots:            tensor.NewMatrix(caps.MaxNumTotalSlots(), d),
			CatStatusWeights:    tensor.NewTensor3(caps.MaxNumCatSlots, 2*d, numStatusClasses),
			NoncatStatusWeights: tensor.NewTensor3(caps.MaxNumNoncatSlots, 2*d, numStatusClasses),
		}
		fill(svc.Intents.Data)
		fill(svc.CatSlots.Data)
		fill(svc.CatValues.Data)
		fill(svc.NoncatSlots.Data)
		fill(svc.ReqSlots.Data)
		fill(svc.CatStatusWeights.Data)
		fill(svc.NoncatStatusWeights.Data)
		emb.Services[id] = svc
	}
	return emb
}
