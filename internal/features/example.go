package features

import (
	"fmt"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/schema"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/tensor"
)

// Labels are the ground-truth annotations of one turn, carried through
// the pipeline for evaluation debugging. Field names mirror the SGD
// feature names.
type Labels struct {
	IntentStatus         int   `json:"intent_status"`
	RequestedSlotStatus  []int `json:"requested_slot_status"`
	CatSlotStatus        []int `json:"categorical_slot_status"`
	CatSlotValue         []int `json:"categorical_slot_value"`
	NoncatSlotStatus     []int `json:"noncategorical_slot_status"`
	NoncatSlotValueStart []int `json:"noncategorical_slot_value_start"`
	NoncatSlotValueEnd   []int `json:"noncategorical_slot_value_end"`
}

// TurnExample is one (dialogue, turn, service) frame as the encoder
// exported it: identity, actual element counts bounding the padded
// axes, token-to-character alignment and ground-truth labels. The
// utterance encodings are attached by the dataset reader and are not
// part of the JSON metadata.
type TurnExample struct {
	// ExampleIDNum is [dialogIDPart1, dialogIDPart2, turnIdx, serviceID].
	ExampleIDNum  [4]int `json:"example_id_num"`
	ServiceID     int    `json:"service_id"`
	IsRealExample bool   `json:"is_real_example"`

	NumTokens int `json:"num_tokens"`

	NumIntents       int   `json:"num_intents"`
	NumCatSlots      int   `json:"num_categorical_slots"`
	NumCatSlotValues []int `json:"num_categorical_slot_values"`
	NumNoncatSlots   int   `json:"num_noncategorical_slots"`
	NumSlots         int   `json:"num_slots"`

	// Character alignment per token position: inclusive start and
	// exclusive end byte offsets into the user utterance, -1 where a
	// token does not map back into it.
	StartCharIdx []int `json:"start_char_idx"`
	EndCharIdx   []int `json:"end_char_idx"`

	Labels Labels `json:"labels"`

	Pooled []float32      `json:"-"`
	Tokens *tensor.Matrix `json:"-"`
}

// DialogueID renders the two-part SGD dialogue identifier.
func (e *TurnExample) DialogueID() string {
	return fmt.Sprintf("%d_%05d", e.ExampleIDNum[0], e.ExampleIDNum[1])
}

// TurnIndex is the position of the user turn inside the dialogue.
func (e *TurnExample) TurnIndex() int {
	return e.ExampleIDNum[2]
}

// Prepare validates the example against the capacities and pads the
// alignment arrays to full length. The serving path runs it on examples
// built from request bodies; the dataset reader does the equivalent
// while loading.
func (e *TurnExample) Prepare(caps schema.Capacities) error {
	if err := e.validate(0, caps); err != nil {
		return err
	}
	e.canonicalize(caps)
	return nil
}

func (e *TurnExample) validate(idx int, caps schema.Capacities) error {
	if e.ServiceID < 0 {
		return fmt.Errorf("example %d: negative service id %d", idx, e.ServiceID)
	}
	if e.ExampleIDNum[3] != e.ServiceID {
		return fmt.Errorf("example %d: id service %d does not match service_id %d",
			idx, e.ExampleIDNum[3], e.ServiceID)
	}
	if e.NumTokens <= 0 || e.NumTokens > caps.MaxSeqLength {
		return fmt.Errorf("example %d: num_tokens %d outside (0, %d]", idx, e.NumTokens, caps.MaxSeqLength)
	}
	if e.NumIntents < 0 || e.NumIntents > caps.MaxNumIntents {
		return fmt.Errorf("example %d: num_intents %d exceeds capacity %d", idx, e.NumIntents, caps.MaxNumIntents)
	}
	if e.NumCatSlots < 0 || e.NumCatSlots > caps.MaxNumCatSlots {
		return fmt.Errorf("example %d: num_categorical_slots %d exceeds capacity %d",
			idx, e.NumCatSlots, caps.MaxNumCatSlots)
	}
	if len(e.NumCatSlotValues) != e.NumCatSlots {
		return fmt.Errorf("example %d: %d value counts for %d categorical slots",
			idx, len(e.NumCatSlotValues), e.NumCatSlots)
	}
	for s, n := range e.NumCatSlotValues {
		if n < 0 || n > caps.MaxNumValuesPerCatSlot {
			return fmt.Errorf("example %d: slot %d has %d values, capacity is %d",
				idx, s, n, caps.MaxNumValuesPerCatSlot)
		}
	}
	if e.NumNoncatSlots < 0 || e.NumNoncatSlots > caps.MaxNumNoncatSlots {
		return fmt.Errorf("example %d: num_noncategorical_slots %d exceeds capacity %d",
			idx, e.NumNoncatSlots, caps.MaxNumNoncatSlots)
	}
	if e.NumSlots != e.NumCatSlots+e.NumNoncatSlots {
		return fmt.Errorf("example %d: num_slots %d does not equal %d categorical + %d non-categorical",
			idx, e.NumSlots, e.NumCatSlots, e.NumNoncatSlots)
	}
	if len(e.StartCharIdx) > caps.MaxSeqLength || len(e.EndCharIdx) > caps.MaxSeqLength {
		return fmt.Errorf("example %d: char alignment longer than %d tokens", idx, caps.MaxSeqLength)
	}
	return nil
}

// canonicalize pads the char-alignment arrays to MaxSeqLength with the
// non-alignable marker so decoders can index any token position.
func (e *TurnExample) canonicalize(caps schema.Capacities) {
	e.StartCharIdx = padAlignment(e.StartCharIdx, caps.MaxSeqLength)
	e.EndCharIdx = padAlignment(e.EndCharIdx, caps.MaxSeqLength)
}

func padAlignment(idx []int, n int) []int {
	if len(idx) == n {
		return idx
	}
	out := make([]int, n)
	copy(out, idx)
	for i := len(idx); i < n; i++ {
		out[i] = -1
	}
	return out
}

// Partition splits examples into consecutive batches of at most size,
// preserving order.
func Partition(examples []*TurnExample, size int) [][]*TurnExample {
	if size <= 0 {
		size = 1
	}
	batches := make([][]*TurnExample, 0, (len(examples)+size-1)/size)
	for start := 0; start < len(examples); start += size {
		end := start + size
		if end > len(examples) {
			end = len(examples)
		}
		batches = append(batches, examples[start:end])
	}
	return batches
}
