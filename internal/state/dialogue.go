// Package state models schema-guided dialogue files and rewrites their
// user-turn frame states from decoded predictions.
package state

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	SpeakerUser   = "USER"
	SpeakerSystem = "SYSTEM"

	// NoneIntent is the active-intent value of a turn with no intent.
	NoneIntent = "NONE"

	// MetricNotAvailable marks a metric undefined for a frame, e.g. a
	// goal accuracy when the reference state holds no slots.
	MetricNotAvailable = "NA"
)

// MetricValue is one per-frame metric: a number, or "NA" on the wire
// when the metric is undefined for that frame.
type MetricValue struct {
	Defined bool
	Value   float64
}

func Metric(v float64) MetricValue {
	return MetricValue{Defined: true, Value: v}
}

func (m MetricValue) MarshalJSON() ([]byte, error) {
	if !m.Defined {
		return json.Marshal(MetricNotAvailable)
	}
	return json.Marshal(m.Value)
}

func (m *MetricValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != MetricNotAvailable {
			return fmt.Errorf("metric value %q is not %q", s, MetricNotAvailable)
		}
		*m = MetricValue{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*m = Metric(v)
	return nil
}

// SlotSpan is an annotated slot mention: byte offsets into the turn
// utterance, end exclusive.
type SlotSpan struct {
	Slot         string `json:"slot"`
	Start        int    `json:"start"`
	ExclusiveEnd int    `json:"exclusive_end"`
}

type Action struct {
	Act             string   `json:"act"`
	Slot            string   `json:"slot,omitempty"`
	Values          []string `json:"values,omitempty"`
	CanonicalValues []string `json:"canonical_values,omitempty"`
}

// FrameState is the tracked dialogue state of one frame: the active
// intent, slots the user asked about, and the accumulated goal.
type FrameState struct {
	ActiveIntent   string              `json:"active_intent"`
	RequestedSlots []string            `json:"requested_slots"`
	SlotValues     map[string][]string `json:"slot_values"`
}

type Frame struct {
	Service string      `json:"service"`
	Actions []Action    `json:"actions,omitempty"`
	Slots   []SlotSpan  `json:"slots,omitempty"`
	State   *FrameState `json:"state,omitempty"`

	// Metrics are attached per hypothesis frame by the evaluator.
	Metrics map[string]MetricValue `json:"metrics,omitempty"`
}

type Turn struct {
	Speaker   string  `json:"speaker"`
	Utterance string  `json:"utterance"`
	Frames    []Frame `json:"frames"`
}

type Dialogue struct {
	DialogueID string   `json:"dialogue_id"`
	Services   []string `json:"services"`
	Turns      []Turn   `json:"turns"`
}

// LoadDialogueFile reads one dialogue file: a JSON array of dialogues.
func LoadDialogueFile(path string) ([]*Dialogue, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dialogue file %s: %w", path, err)
	}
	var dialogues []*Dialogue
	if err := json.Unmarshal(raw, &dialogues); err != nil {
		return nil, fmt.Errorf("dialogue file %s: %w", path, err)
	}
	return dialogues, nil
}

// SaveDialogueFile writes dialogues the way the dataset ships them:
// a two-space indented JSON array.
func SaveDialogueFile(path string, dialogues []*Dialogue) error {
	raw, err := json.MarshalIndent(dialogues, "", "  ")
	if err != nil {
		return fmt.Errorf("dialogue file %s: %w", path, err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("dialogue file %s: %w", path, err)
	}
	return nil
}
