package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/decoder"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/schema"
)

// FrameKey addresses the prediction of one frame.
type FrameKey struct {
	DialogueID string
	TurnIndex  int
	Service    string
}

// PredictionIndex maps frames to their decoded predictions.
type PredictionIndex map[FrameKey]*decoder.Prediction

// IndexPredictions builds the frame index, dropping padding examples.
func IndexPredictions(preds []*decoder.Prediction) PredictionIndex {
	index := make(PredictionIndex, len(preds))
	for _, p := range preds {
		if !p.IsRealExample {
			continue
		}
		index[FrameKey{DialogueID: p.DialogueID, TurnIndex: p.TurnIndex, Service: p.ServiceName}] = p
	}
	return index
}

// Writer rewrites ground-truth dialogue files into hypothesis files
// whose user-turn frame states come from decoded predictions.
type Writer struct {
	services  *schema.Collection
	threshold float64
}

// NewWriter builds a writer. threshold is the sigmoid probability above
// which a slot counts as requested.
func NewWriter(services *schema.Collection, requestedSlotThreshold float64) *Writer {
	return &Writer{services: services, threshold: requestedSlotThreshold}
}

// WriteHypothesisFiles walks the input dialogue files and writes one
// hypothesis file per input under outputDir, keeping basenames.
func (w *Writer) WriteHypothesisFiles(inputFiles []string, outputDir string, preds []*decoder.Prediction) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("hypothesis dir %s: %w", outputDir, err)
	}
	index := IndexPredictions(preds)
	for _, path := range inputFiles {
		dialogues, err := LoadDialogueFile(path)
		if err != nil {
			return err
		}
		for _, d := range dialogues {
			if err := w.PredictDialogue(d, index); err != nil {
				return fmt.Errorf("dialogue file %s: %w", path, err)
			}
		}
		if err := SaveDialogueFile(filepath.Join(outputDir, filepath.Base(path)), dialogues); err != nil {
			return err
		}
	}
	return nil
}

// PredictDialogue replaces every user-turn frame state in place. Slot
// values carry over between turns of the same service until a later
// prediction overwrites them.
func (w *Writer) PredictDialogue(d *Dialogue, index PredictionIndex) error {
	carryByService := make(map[string]map[string]string)
	for ti := range d.Turns {
		turn := &d.Turns[ti]
		if turn.Speaker != SpeakerUser {
			continue
		}
		for fi := range turn.Frames {
			frame := &turn.Frames[fi]
			pred, ok := index[FrameKey{DialogueID: d.DialogueID, TurnIndex: ti, Service: frame.Service}]
			if !ok {
				return fmt.Errorf("dialogue %s turn %d: no prediction for service %s", d.DialogueID, ti, frame.Service)
			}
			svc, ok := w.services.ByName(frame.Service)
			if !ok {
				return fmt.Errorf("dialogue %s turn %d: service %s not in schema", d.DialogueID, ti, frame.Service)
			}
			carry := carryByService[frame.Service]
			if carry == nil {
				carry = make(map[string]string)
				carryByService[frame.Service] = carry
			}
			st, err := w.FrameState(pred, svc, turn.Utterance, carry)
			if err != nil {
				return fmt.Errorf("dialogue %s turn %d: %w", d.DialogueID, ti, err)
			}
			frame.Slots = nil
			frame.State = st
		}
	}
	return nil
}

// FrameState decodes one frame's state. carry holds the slot values
// accumulated from earlier turns of the same service and is updated with
// this turn's decisions; pass a fresh map for single-turn decoding.
func (w *Writer) FrameState(pred *decoder.Prediction, svc *schema.Service, utterance string, carry map[string]string) (*FrameState, error) {
	st := &FrameState{ActiveIntent: NoneIntent, RequestedSlots: []string{}}

	if pred.IntentStatus > 0 {
		if pred.IntentStatus-1 >= len(svc.Intents) {
			return nil, fmt.Errorf("service %s: intent class %d out of range", svc.Name, pred.IntentStatus)
		}
		st.ActiveIntent = svc.Intents[pred.IntentStatus-1]
	}

	for i, slot := range svc.StateSlots() {
		if i < len(pred.ReqSlotStatus) && float64(pred.ReqSlotStatus[i]) > w.threshold {
			st.RequestedSlots = append(st.RequestedSlots, slot)
		}
	}

	for i, slot := range svc.CategoricalSlots {
		if i >= len(pred.CatSlotStatus) {
			return nil, fmt.Errorf("service %s: categorical slot %s beyond predicted statuses", svc.Name, slot)
		}
		switch pred.CatSlotStatus[i] {
		case schema.StatusDontcare:
			carry[slot] = schema.StrDontcare
		case schema.StatusActive:
			values := svc.CategoricalValues[slot]
			idx := pred.CatSlotValue[i]
			if idx >= len(values) {
				return nil, fmt.Errorf("service %s slot %s: value index %d out of range", svc.Name, slot, idx)
			}
			carry[slot] = values[idx]
		}
	}

	for i, slot := range svc.NoncategoricalSlots {
		if i >= len(pred.NoncatSlotStatus) {
			return nil, fmt.Errorf("service %s: slot %s beyond predicted statuses", svc.Name, slot)
		}
		switch pred.NoncatSlotStatus[i] {
		case schema.StatusDontcare:
			carry[slot] = schema.StrDontcare
		case schema.StatusActive:
			if value, ok := spanValue(pred, i, utterance); ok {
				carry[slot] = value
			}
		}
	}

	st.SlotValues = make(map[string][]string, len(carry))
	for slot, value := range carry {
		st.SlotValues[slot] = []string{value}
	}
	return st, nil
}

// spanValue extracts the utterance substring of a selected span via the
// token-to-character alignment. Spans touching non-alignable tokens are
// dropped rather than guessed.
func spanValue(pred *decoder.Prediction, slotIdx int, utterance string) (string, bool) {
	tokStart := pred.NoncatSlotStart[slotIdx]
	tokEnd := pred.NoncatSlotEnd[slotIdx]
	if tokStart >= len(pred.AlignmentStart) || tokEnd >= len(pred.AlignmentEnd) {
		return "", false
	}
	chStart := pred.AlignmentStart[tokStart]
	chEnd := pred.AlignmentEnd[tokEnd]
	if chStart < 0 || chEnd < 0 {
		return "", false
	}
	if chEnd > len(utterance) {
		chEnd = len(utterance)
	}
	if chStart >= chEnd {
		return "", false
	}
	return utterance[chStart:chEnd], true
}
