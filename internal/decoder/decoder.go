// Package decoder turns raw model logits into structured per-example
// prediction records: argmax/sigmoid/softmax decisions, joint span
// selection and batch reassembly in input order.
package decoder

import (
	"fmt"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/features"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/model"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/schema"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/tensor"
)

// Prediction is the decoded record of one (dialogue, turn, service)
// example. Slot-indexed fields are padded to the capacity maxima; the
// real prefix length comes from the schema service.
type Prediction struct {
	ExampleID     string `json:"example_id"`
	DialogueID    string `json:"dialogue_id"`
	TurnIndex     int    `json:"turn_index"`
	ServiceID     int    `json:"service_id"`
	ServiceName   string `json:"service_name"`
	IsRealExample bool   `json:"is_real_example"`

	// IntentStatus is the decided intent class: 0 is the NONE intent,
	// class i maps to the service's intent i-1.
	IntentStatus int `json:"intent_status"`

	// ReqSlotStatus holds independent sigmoid probabilities, one per
	// requested-slot candidate. ReqSlotMask bounds the real slots.
	ReqSlotStatus []float32 `json:"req_slot_status"`
	ReqSlotMask   []bool    `json:"-"`

	CatSlotStatus  []int     `json:"cat_slot_status"`
	CatSlotStatusP []float32 `json:"cat_slot_status_p"`
	CatSlotValue   []int     `json:"cat_slot_value"`
	CatSlotValueP  []float32 `json:"cat_slot_value_p"`

	NoncatSlotStatus  []int     `json:"noncat_slot_status"`
	NoncatSlotStatusP []float32 `json:"noncat_slot_status_p"`
	NoncatSlotP       []float32 `json:"noncat_slot_p"`
	NoncatSlotStart   []int     `json:"noncat_slot_start"`
	NoncatSlotEnd     []int     `json:"noncat_slot_end"`

	// Token to character alignment of the source utterance, passed
	// through unchanged for span extraction downstream.
	AlignmentStart []int `json:"noncat_alignment_start"`
	AlignmentEnd   []int `json:"noncat_alignment_end"`

	// Ground-truth statuses ride along for error analysis when the
	// input examples carry labels.
	CatSlotStatusGT    []int `json:"cat_slot_status_GT,omitempty"`
	NoncatSlotStatusGT []int `json:"noncat_slot_status_GT,omitempty"`
}

// ExampleID renders the canonical display id of one example.
func ExampleID(dataset string, idNum [4]int, serviceName string) string {
	return fmt.Sprintf("%s-%d_%05d-%02d-%s", dataset, idNum[0], idNum[1], idNum[2], serviceName)
}

// Decoder resolves service names for example ids and decodes forward
// pass outputs. Safe for concurrent use.
type Decoder struct {
	services *schema.Collection
	dataset  string
}

func New(services *schema.Collection, dataset string) *Decoder {
	return &Decoder{services: services, dataset: dataset}
}

// DecodeBatch splits one forward-pass output back into per-example
// records, preserving batch order.
func (d *Decoder) DecodeBatch(out *model.Output, batch []*features.TurnExample) ([]*Prediction, error) {
	if out == nil || out.BatchSize != len(batch) {
		return nil, fmt.Errorf("decoder: output batch size does not match %d examples", len(batch))
	}
	preds := make([]*Prediction, len(batch))
	for i, ex := range batch {
		svc, ok := d.services.ByID(ex.ServiceID)
		if !ok {
			return nil, fmt.Errorf("decoder: example %s has unknown service id %d", ex.DialogueID(), ex.ServiceID)
		}
		preds[i] = d.decodeExample(out, i, ex, svc)
	}
	return preds, nil
}

func (d *Decoder) decodeExample(out *model.Output, i int, ex *features.TurnExample, svc *schema.Service) *Prediction {
	p := &Prediction{
		ExampleID:     ExampleID(d.dataset, ex.ExampleIDNum, svc.Name),
		DialogueID:    ex.DialogueID(),
		TurnIndex:     ex.TurnIndex(),
		ServiceID:     ex.ServiceID,
		ServiceName:   svc.Name,
		IsRealExample: ex.IsRealExample,
	}

	p.IntentStatus, _ = tensor.ArgMax(out.IntentStatus.Row(i))

	reqLogits := out.ReqSlotStatus.Row(i)
	p.ReqSlotStatus = make([]float32, len(reqLogits))
	for s, logit := range reqLogits {
		p.ReqSlotStatus[s] = tensor.Sigmoid(logit)
	}
	p.ReqSlotMask = append([]bool(nil), out.ReqSlotMask[i]...)

	catStatus := out.CatSlotStatus.Slice(i)
	for s := 0; s < catStatus.Rows; s++ {
		cls, conf := classDecision(catStatus.Row(s))
		p.CatSlotStatus = append(p.CatSlotStatus, cls)
		p.CatSlotStatusP = append(p.CatSlotStatusP, conf)
	}
	catValue := out.CatSlotValue.Slice(i)
	for s := 0; s < catValue.Rows; s++ {
		value, conf := classDecision(catValue.Row(s))
		p.CatSlotValue = append(p.CatSlotValue, value)
		p.CatSlotValueP = append(p.CatSlotValueP, conf)
	}

	noncatStatus := out.NoncatSlotStatus.Slice(i)
	starts := out.NoncatSlotStart.Slice(i)
	ends := out.NoncatSlotEnd.Slice(i)
	for s := 0; s < noncatStatus.Rows; s++ {
		cls, conf := classDecision(noncatStatus.Row(s))
		p.NoncatSlotStatus = append(p.NoncatSlotStatus, cls)
		p.NoncatSlotStatusP = append(p.NoncatSlotStatusP, conf)

		start, end, total := selectSpan(starts.Row(s), ends.Row(s))
		p.NoncatSlotStart = append(p.NoncatSlotStart, start)
		p.NoncatSlotEnd = append(p.NoncatSlotEnd, end)
		p.NoncatSlotP = append(p.NoncatSlotP, total)
	}

	p.AlignmentStart = append([]int(nil), ex.StartCharIdx...)
	p.AlignmentEnd = append([]int(nil), ex.EndCharIdx...)
	p.CatSlotStatusGT = append([]int(nil), ex.Labels.CatSlotStatus...)
	p.NoncatSlotStatusGT = append([]int(nil), ex.Labels.NoncatSlotStatus...)
	return p
}

// classDecision picks the first-maximum class and its softmax
// probability. Sentinel-masked logits contribute near-zero probability
// mass, so padded classes never win against real ones.
func classDecision(logits []float32) (int, float32) {
	probs := make([]float32, len(logits))
	tensor.Softmax(probs, logits)
	cls, _ := tensor.ArgMax(logits)
	return cls, probs[cls]
}

// selectSpan runs the joint span search: softmax start and end logits
// independently over the token axis, score every (i, j) pair with
// start[i] + end[j], zero pairs where the end precedes the start, and
// take the first maximum over the flattened T*T matrix. The returned
// confidence is the selected total, in [0, 2].
func selectSpan(startLogits, endLogits []float32) (start, end int, confidence float32) {
	n := len(startLogits)
	startP := make([]float32, n)
	endP := make([]float32, n)
	tensor.Softmax(startP, startLogits)
	tensor.Softmax(endP, endLogits)

	bestK := 0
	best := float32(-1)
	for k := 0; k < n*n; k++ {
		i, j := k/n, k%n
		var score float32
		if i <= j {
			score = startP[i] + endP[j]
		}
		if score > best {
			best = score
			bestK = k
		}
	}
	return bestK / n, bestK % n, best
}
