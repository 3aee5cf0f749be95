package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/schema"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/state"
)

// Aggregation scopes. Frames also aggregate under their service name
// and their domain (the service name before the underscore).
const (
	ScopeAllServices    = "#ALL_SERVICES"
	ScopeSeenServices   = "#SEEN_SERVICES"
	ScopeUnseenServices = "#UNSEEN_SERVICES"

	// PerFrameOutputFilename is the hypothesis dataset with per-frame
	// metrics attached, written next to the hypothesis files.
	PerFrameOutputFilename = "metrics_and_dialogues.json"
)

// Aggregate maps metric name to its macro-average over a scope.
type Aggregate map[string]state.MetricValue

// ServiceSet reads the set of service names in a schema file.
func ServiceSet(schemaPath string) (map[string]bool, error) {
	raw, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", schemaPath, err)
	}
	var defs []schema.ServiceDefinition
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("schema %s: %w", schemaPath, err)
	}
	set := make(map[string]bool, len(defs))
	for _, def := range defs {
		set[def.ServiceName] = true
	}
	return set, nil
}

// InDomainServices returns the services present in both schema files.
// A service seen during training is in-domain for evaluation.
func InDomainServices(evalSchemaPath, trainSchemaPath string) (map[string]bool, error) {
	evalSet, err := ServiceSet(evalSchemaPath)
	if err != nil {
		return nil, err
	}
	trainSet, err := ServiceSet(trainSchemaPath)
	if err != nil {
		return nil, err
	}
	common := make(map[string]bool)
	for name := range evalSet {
		if trainSet[name] {
			common[name] = true
		}
	}
	return common, nil
}

// LoadDatasetDict reads every dialogue file matching the glob patterns
// into one map keyed by dialogue id. Per-frame metric outputs living in
// the same directory are skipped.
func LoadDatasetDict(patterns []string) (map[string]*state.Dialogue, error) {
	dataset := make(map[string]*state.Dialogue)
	for _, pattern := range patterns {
		paths, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("dialogue pattern %s: %w", pattern, err)
		}
		sort.Strings(paths)
		for _, path := range paths {
			if filepath.Base(path) == PerFrameOutputFilename {
				continue
			}
			dialogues, err := state.LoadDialogueFile(path)
			if err != nil {
				return nil, err
			}
			for _, d := range dialogues {
				dataset[d.DialogueID] = d
			}
		}
	}
	return dataset, nil
}

// FrameID renders the per-frame metric key.
func FrameID(dialogueID string, turnIndex int, service string) string {
	return fmt.Sprintf("%s-%03d-%s", dialogueID, turnIndex, service)
}

// GetMetrics scores every hypothesis frame against its reference frame
// and aggregates per scope, per service and per domain. Metrics are
// also attached to the hypothesis frames in place. The per-frame map is
// keyed by FrameID.
func GetMetrics(ref, hyp map[string]*state.Dialogue, services *schema.Collection, inDomain map[string]bool, matcher Matcher) (map[string]Aggregate, map[string]map[string]state.MetricValue, error) {
	collected := map[string]map[string][]float64{
		ScopeAllServices:    {},
		ScopeSeenServices:   {},
		ScopeUnseenServices: {},
	}
	perFrame := make(map[string]map[string]state.MetricValue)

	for _, dialogueID := range sortedKeys(hyp) {
		dialHyp := hyp[dialogueID]
		dialRef, ok := ref[dialogueID]
		if !ok {
			return nil, nil, fmt.Errorf("hypothesis dialogue %s not in reference dataset", dialogueID)
		}
		if err := scoreDialogue(dialRef, dialHyp, services, inDomain, matcher, collected, perFrame); err != nil {
			return nil, nil, err
		}
	}

	aggregates := make(map[string]Aggregate, len(collected))
	for scope, metricValues := range collected {
		agg := make(Aggregate, len(metricValues))
		for name, values := range metricValues {
			var sum float64
			for _, v := range values {
				sum += v
			}
			agg[name] = state.Metric(sum / float64(len(values)))
		}
		aggregates[scope] = agg
	}
	return aggregates, perFrame, nil
}

func scoreDialogue(dialRef, dialHyp *state.Dialogue, services *schema.Collection, inDomain map[string]bool, matcher Matcher, collected map[string]map[string][]float64, perFrame map[string]map[string]state.MetricValue) error {
	id := dialHyp.DialogueID
	if !sameServiceSet(dialRef.Services, dialHyp.Services) {
		return fmt.Errorf("dialogue %s: reference and hypothesis disagree on services", id)
	}
	if len(dialRef.Turns) != len(dialHyp.Turns) {
		return fmt.Errorf("dialogue %s: turn counts differ", id)
	}

	for ti := range dialRef.Turns {
		turnRef := &dialRef.Turns[ti]
		turnHyp := &dialHyp.Turns[ti]
		if turnRef.Speaker != turnHyp.Speaker {
			return fmt.Errorf("dialogue %s turn %d: speakers differ", id, ti)
		}
		if turnRef.Utterance != turnHyp.Utterance {
			return fmt.Errorf("dialogue %s turn %d: utterances differ", id, ti)
		}
		if turnRef.Speaker != state.SpeakerUser {
			continue
		}

		hypByService := make(map[string]*state.Frame, len(turnHyp.Frames))
		for fi := range turnHyp.Frames {
			hypByService[turnHyp.Frames[fi].Service] = &turnHyp.Frames[fi]
		}

		for fi := range turnRef.Frames {
			frameRef := &turnRef.Frames[fi]
			frameHyp, ok := hypByService[frameRef.Service]
			if !ok {
				return fmt.Errorf("dialogue %s turn %d: no hypothesis frame for service %s", id, ti, frameRef.Service)
			}
			svc, ok := services.ByName(frameRef.Service)
			if !ok {
				return fmt.Errorf("dialogue %s turn %d: service %s not in schema", id, ti, frameRef.Service)
			}
			if frameRef.State == nil || frameHyp.State == nil {
				return fmt.Errorf("dialogue %s turn %d service %s: missing state", id, ti, frameRef.Service)
			}

			frameMetric := scoreFrame(frameRef, frameHyp, turnRef.Utterance, svc, matcher)
			frameHyp.Metrics = frameMetric
			perFrame[FrameID(id, ti, frameRef.Service)] = frameMetric

			for _, key := range scopeKeys(frameRef.Service, inDomain) {
				scope := collected[key]
				if scope == nil {
					scope = map[string][]float64{}
					collected[key] = scope
				}
				for name, value := range frameMetric {
					if value.Defined {
						scope[name] = append(scope[name], value.Value)
					}
				}
			}
		}
	}
	return nil
}

func scoreFrame(frameRef, frameHyp *state.Frame, utterance string, svc *schema.Service, matcher Matcher) map[string]state.MetricValue {
	frameMetric := map[string]state.MetricValue{
		ActiveIntentAccuracy: state.Metric(ActiveIntentAccuracyOf(frameRef, frameHyp)),
	}
	requested := RequestedSlotsF1Of(frameRef, frameHyp)
	frameMetric[RequestedSlotsF1] = state.Metric(requested.F1)
	frameMetric[RequestedSlotsPrecision] = state.Metric(requested.Precision)
	frameMetric[RequestedSlotsRecall] = state.Metric(requested.Recall)

	if tagging := SlotTaggingF1Of(frameRef, frameHyp, utterance, svc); tagging != nil {
		frameMetric[SlotTaggingF1] = state.Metric(tagging.F1)
		frameMetric[SlotTaggingPrecision] = state.Metric(tagging.Precision)
		frameMetric[SlotTaggingRecall] = state.Metric(tagging.Recall)
	}

	for name, value := range matcher.GoalAccuracies(frameRef, frameHyp, svc) {
		frameMetric[name] = value
	}
	return frameMetric
}

// scopeKeys lists every aggregation key a frame contributes to.
func scopeKeys(service string, inDomain map[string]bool) []string {
	domain := strings.SplitN(service, "_", 2)[0]
	keys := []string{ScopeAllServices, service, domain}
	if inDomain[service] {
		return append(keys, ScopeSeenServices)
	}
	return append(keys, ScopeUnseenServices)
}

func sameServiceSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]*state.Dialogue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteAggregates writes the scope aggregates as indented JSON with
// sorted keys.
func WriteAggregates(path string, aggregates map[string]Aggregate) error {
	raw, err := json.MarshalIndent(aggregates, "", "  ")
	if err != nil {
		return fmt.Errorf("metrics file %s: %w", path, err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("metrics file %s: %w", path, err)
	}
	return nil
}

// WritePerFrameDialogues writes the hypothesis dataset, frame metrics
// included, under the prediction directory.
func WritePerFrameDialogues(predictionDir string, hyp map[string]*state.Dialogue) error {
	path := filepath.Join(predictionDir, PerFrameOutputFilename)
	raw, err := json.MarshalIndent(hyp, "", "  ")
	if err != nil {
		return fmt.Errorf("per-frame file %s: %w", path, err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("per-frame file %s: %w", path, err)
	}
	return nil
}
