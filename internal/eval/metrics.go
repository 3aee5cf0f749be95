// Package eval matches hypothesis dialogue states against ground truth
// and aggregates dialogue-state-tracking metrics across service scopes.
package eval

import (
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/schema"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/state"
)

// Per-frame metric names. Averages are macro-averaged over frames.
const (
	ActiveIntentAccuracy = "active_intent_accuracy"

	RequestedSlotsF1        = "requested_slots_f1"
	RequestedSlotsPrecision = "requested_slots_precision"
	RequestedSlotsRecall    = "requested_slots_recall"

	SlotTaggingF1        = "slot_tagging_f1"
	SlotTaggingPrecision = "slot_tagging_precision"
	SlotTaggingRecall    = "slot_tagging_recall"

	AverageGoalAccuracy   = "average_goal_accuracy"
	AverageCatAccuracy    = "average_cat_accuracy"
	AverageNoncatAccuracy = "average_noncat_accuracy"
	JointGoalAccuracy     = "joint_goal_accuracy"
	JointCatAccuracy      = "joint_cat_accuracy"
	JointNoncatAccuracy   = "joint_noncat_accuracy"
)

// F1Scores bundle the three facets of a multiset F1 comparison.
type F1Scores struct {
	F1        float64
	Precision float64
	Recall    float64
}

// ComputeF1 compares two string multisets. An empty hypothesis against
// an empty reference counts as a perfect match.
func ComputeF1(ref, hyp []string) F1Scores {
	refCounts := counter(ref)
	hypCounts := counter(hyp)

	var truePositive int
	for item, n := range refCounts {
		if m := hypCounts[item]; m < n {
			truePositive += m
		} else {
			truePositive += n
		}
	}

	precision := 1.0
	if len(hyp) > 0 {
		precision = float64(truePositive) / float64(len(hyp))
	}
	recall := 1.0
	if len(ref) > 0 {
		recall = float64(truePositive) / float64(len(ref))
	}
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return F1Scores{F1: f1, Precision: precision, Recall: recall}
}

func counter(items []string) map[string]int {
	counts := make(map[string]int, len(items))
	for _, item := range items {
		counts[item]++
	}
	return counts
}

// FuzzyStringMatch scores string similarity in [0, 1] via the token
// sort ratio, so word order does not matter.
func FuzzyStringMatch(ref, hyp string) float64 {
	return float64(fuzzy.TokenSortRatio(ref, hyp)) / 100.0
}

// Matcher scores slot values. fuzzyThreshold floors non-categorical
// fuzzy scores: matches below it count zero. useFuzzy false demands
// exact equality.
type Matcher struct {
	UseFuzzy       bool
	FuzzyThreshold float64
}

// NoncatValueMatch scores a hypothesis value against every reference
// alternative and keeps the best score.
func (m Matcher) NoncatValueMatch(refs []string, hyp string) float64 {
	score := 0.0
	for _, ref := range refs {
		var match float64
		if m.UseFuzzy {
			match = FuzzyStringMatch(ref, hyp)
			if match < m.FuzzyThreshold {
				match = 0.0
			}
		} else if ref == hyp {
			match = 1.0
		}
		if match > score {
			score = match
		}
	}
	return score
}

// CompareSlotValues scores every slot the service defines, in schema
// order. cor holds the per-slot correctness (exact 0/1 for categorical,
// [0,1] for non-categorical), active marks slots present in the
// reference state, cat marks categorical slots.
func (m Matcher) CompareSlotValues(ref, hyp map[string][]string, svc *schema.Service) (cor []float64, active, cat []bool) {
	for _, slot := range svc.Definition.Slots {
		cat = append(cat, slot.IsCategorical)

		refValues, inRef := ref[slot.Name]
		hypValues, inHyp := hyp[slot.Name]
		active = append(active, inRef)

		switch {
		case inRef && inHyp && len(hypValues) > 0:
			if slot.IsCategorical {
				cor = append(cor, exactAnyMatch(refValues, hypValues[0]))
			} else {
				cor = append(cor, m.NoncatValueMatch(refValues, hypValues[0]))
			}
		case !inRef && !inHyp:
			cor = append(cor, 1.0)
		default:
			cor = append(cor, 0.0)
		}
	}
	return cor, active, cat
}

func exactAnyMatch(refs []string, hyp string) float64 {
	for _, ref := range refs {
		if ref == hyp {
			return 1.0
		}
	}
	return 0.0
}

// ActiveIntentAccuracyOf scores the active intent decision of a frame.
func ActiveIntentAccuracyOf(ref, hyp *state.Frame) float64 {
	if ref.State.ActiveIntent == hyp.State.ActiveIntent {
		return 1.0
	}
	return 0.0
}

// RequestedSlotsF1Of scores the requested-slot decisions of a frame.
func RequestedSlotsF1Of(ref, hyp *state.Frame) F1Scores {
	return ComputeF1(ref.State.RequestedSlots, hyp.State.RequestedSlots)
}

// SlotTaggingF1Of scores non-categorical span annotations by the
// (slot, substring) pairs they select. Hypotheses without span
// annotations (the usual case for state-only trackers) return nil.
func SlotTaggingF1Of(ref, hyp *state.Frame, utterance string, svc *schema.Service) *F1Scores {
	if hyp.Slots == nil {
		return nil
	}
	scores := ComputeF1(taggedValues(ref.Slots, utterance, svc), taggedValues(hyp.Slots, utterance, svc))
	return &scores
}

func taggedValues(spans []state.SlotSpan, utterance string, svc *schema.Service) []string {
	var pairs []string
	for _, span := range spans {
		if svc.IsCategorical(span.Slot) {
			continue
		}
		end := span.ExclusiveEnd
		if end > len(utterance) {
			end = len(utterance)
		}
		if span.Start < 0 || span.Start >= end {
			continue
		}
		pairs = append(pairs, span.Slot+"="+utterance[span.Start:end])
	}
	return pairs
}

// GoalAccuracies computes the average and joint goal accuracies of a
// frame. Averages cover slots active in the reference; joints multiply
// over every slot of the family, so one wrong slot zeroes the frame.
// Families with no contributing slots yield undefined metrics.
func (m Matcher) GoalAccuracies(ref, hyp *state.Frame, svc *schema.Service) map[string]state.MetricValue {
	cor, active, cat := m.CompareSlotValues(ref.State.SlotValues, hyp.State.SlotValues, svc)

	goal := make(map[string]state.MetricValue, 6)
	goal[AverageGoalAccuracy] = meanWhere(cor, func(i int) bool { return active[i] })
	goal[AverageCatAccuracy] = meanWhere(cor, func(i int) bool { return active[i] && cat[i] })
	goal[AverageNoncatAccuracy] = meanWhere(cor, func(i int) bool { return active[i] && !cat[i] })
	goal[JointGoalAccuracy] = productWhere(cor, func(i int) bool { return true })
	goal[JointCatAccuracy] = productWhere(cor, func(i int) bool { return cat[i] })
	goal[JointNoncatAccuracy] = productWhere(cor, func(i int) bool { return !cat[i] })
	return goal
}

func meanWhere(values []float64, keep func(int) bool) state.MetricValue {
	var sum float64
	var n int
	for i, v := range values {
		if keep(i) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return state.MetricValue{}
	}
	return state.Metric(sum / float64(n))
}

func productWhere(values []float64, keep func(int) bool) state.MetricValue {
	product := 1.0
	var n int
	for i, v := range values {
		if keep(i) {
			product *= v
			n++
		}
	}
	if n == 0 {
		return state.MetricValue{}
	}
	return state.Metric(product)
}
