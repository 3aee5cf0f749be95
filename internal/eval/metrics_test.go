package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/schema"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/state"
)

// mediaService defines slots in file order [title genre year actor]
// with genre and year categorical. All four slots are state slots.
func mediaService(t *testing.T) *schema.Service {
	t.Helper()
	c, err := schema.NewCollection([]schema.ServiceDefinition{
		{
			ServiceName: "Media_1",
			Slots: []schema.SlotDefinition{
				{Name: "title"},
				{Name: "genre", IsCategorical: true, PossibleValues: []string{"action", "comedy", "drama"}},
				{Name: "year", IsCategorical: true, PossibleValues: []string{"2019", "2020"}},
				{Name: "actor"},
			},
			Intents: []schema.IntentDefinition{
				{
					Name:          "FindMovie",
					RequiredSlots: []string{"title", "genre"},
					OptionalSlots: map[string]string{"year": "dontcare", "actor": "dontcare"},
				},
				{Name: "PlayMovie", RequiredSlots: []string{"title"}},
			},
		},
	})
	require.NoError(t, err)
	svc, ok := c.ByName("Media_1")
	require.True(t, ok)
	return svc
}

// musicService has only non-categorical slots, so categorical goal
// metrics stay undefined for every frame.
func musicService(t *testing.T) *schema.Service {
	t.Helper()
	c, err := schema.NewCollection([]schema.ServiceDefinition{
		{
			ServiceName: "Music_1",
			Slots: []schema.SlotDefinition{
				{Name: "song"},
				{Name: "artist"},
			},
			Intents: []schema.IntentDefinition{
				{Name: "PlaySong", RequiredSlots: []string{"song"}, OptionalSlots: map[string]string{"artist": "dontcare"}},
			},
		},
	})
	require.NoError(t, err)
	svc, ok := c.ByName("Music_1")
	require.True(t, ok)
	return svc
}

func frameWithState(service, intent string, requested []string, values map[string][]string) *state.Frame {
	return &state.Frame{
		Service: service,
		State: &state.FrameState{
			ActiveIntent:   intent,
			RequestedSlots: requested,
			SlotValues:     values,
		},
	}
}

func TestComputeF1(t *testing.T) {
	tests := []struct {
		name string
		ref  []string
		hyp  []string
		want F1Scores
	}{
		{
			name: "both empty is a perfect match",
			want: F1Scores{F1: 1, Precision: 1, Recall: 1},
		},
		{
			name: "identical sets",
			ref:  []string{"city", "time"},
			hyp:  []string{"time", "city"},
			want: F1Scores{F1: 1, Precision: 1, Recall: 1},
		},
		{
			name: "disjoint sets",
			ref:  []string{"city"},
			hyp:  []string{"time"},
			want: F1Scores{F1: 0, Precision: 0, Recall: 0},
		},
		{
			name: "partial overlap",
			ref:  []string{"city", "time"},
			hyp:  []string{"city", "price"},
			want: F1Scores{F1: 0.5, Precision: 0.5, Recall: 0.5},
		},
		{
			name: "multiset counts cap matches",
			ref:  []string{"city", "city", "time"},
			hyp:  []string{"city"},
			want: F1Scores{F1: 0.5, Precision: 1, Recall: 1.0 / 3.0},
		},
		{
			name: "empty hypothesis against a populated reference",
			ref:  []string{"city"},
			want: F1Scores{F1: 0, Precision: 1, Recall: 0},
		},
		{
			name: "populated hypothesis against an empty reference",
			hyp:  []string{"city"},
			want: F1Scores{F1: 0, Precision: 0, Recall: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeF1(tt.ref, tt.hyp)
			assert.InDelta(t, tt.want.F1, got.F1, 1e-9)
			assert.InDelta(t, tt.want.Precision, got.Precision, 1e-9)
			assert.InDelta(t, tt.want.Recall, got.Recall, 1e-9)
		})
	}
}

func TestFuzzyStringMatch(t *testing.T) {
	assert.InDelta(t, 1.0, FuzzyStringMatch("7 pm", "7 pm"), 1e-9)
	assert.InDelta(t, 1.0, FuzzyStringMatch("7 pm", "pm 7"), 1e-9, "token order must not matter")
	assert.InDelta(t, 0.0, FuzzyStringMatch("abc", "xyz"), 1e-9)

	partial := FuzzyStringMatch("the big trip", "big trip")
	assert.Greater(t, partial, 0.5)
	assert.Less(t, partial, 1.0)
}

func TestMatcherNoncatValueMatch(t *testing.T) {
	tests := []struct {
		name    string
		matcher Matcher
		refs    []string
		hyp     string
		want    float64
	}{
		{
			name:    "exact mode matches any alternative",
			matcher: Matcher{},
			refs:    []string{"19:00", "7 pm"},
			hyp:     "7 pm",
			want:    1.0,
		},
		{
			name:    "exact mode rejects near misses",
			matcher: Matcher{},
			refs:    []string{"7 pm"},
			hyp:     "7pm",
			want:    0.0,
		},
		{
			name:    "fuzzy score below the threshold floors to zero",
			matcher: Matcher{UseFuzzy: true, FuzzyThreshold: 0.9},
			refs:    []string{"the big trip"},
			hyp:     "big trip",
			want:    0.0,
		},
		{
			name:    "fuzzy keeps the best alternative",
			matcher: Matcher{UseFuzzy: true, FuzzyThreshold: 0.9},
			refs:    []string{"19:00", "7 pm"},
			hyp:     "7 pm",
			want:    1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.matcher.NoncatValueMatch(tt.refs, tt.hyp), 1e-9)
		})
	}

	t.Run("zero threshold keeps the raw fuzzy score", func(t *testing.T) {
		m := Matcher{UseFuzzy: true}
		got := m.NoncatValueMatch([]string{"the big trip"}, "big trip")
		assert.InDelta(t, 0.8, got, 0.02)
	})
}

func TestCompareSlotValues(t *testing.T) {
	svc := mediaService(t)
	matcher := Matcher{UseFuzzy: true, FuzzyThreshold: 0.9}

	tests := []struct {
		name       string
		ref        map[string][]string
		hyp        map[string][]string
		wantCor    []float64
		wantActive []bool
	}{
		{
			name:       "perfect hypothesis",
			ref:        map[string][]string{"title": {"the big trip"}, "genre": {"comedy"}},
			hyp:        map[string][]string{"title": {"the big trip"}, "genre": {"comedy"}},
			wantCor:    []float64{1, 1, 1, 1},
			wantActive: []bool{true, true, false, false},
		},
		{
			name:       "wrong categorical value",
			ref:        map[string][]string{"title": {"the big trip"}, "genre": {"comedy"}},
			hyp:        map[string][]string{"title": {"the big trip"}, "genre": {"drama"}},
			wantCor:    []float64{1, 0, 1, 1},
			wantActive: []bool{true, true, false, false},
		},
		{
			name:       "near-miss span floors to zero",
			ref:        map[string][]string{"title": {"the big trip"}},
			hyp:        map[string][]string{"title": {"big trip"}},
			wantCor:    []float64{0, 1, 1, 1},
			wantActive: []bool{true, false, false, false},
		},
		{
			name:       "reference alternatives accept any match",
			ref:        map[string][]string{"actor": {"j. smith", "jane smith"}},
			hyp:        map[string][]string{"actor": {"jane smith"}},
			wantCor:    []float64{1, 1, 1, 1},
			wantActive: []bool{false, false, false, true},
		},
		{
			name:       "missing active slot scores zero",
			ref:        map[string][]string{"genre": {"comedy"}},
			hyp:        map[string][]string{},
			wantCor:    []float64{1, 0, 1, 1},
			wantActive: []bool{false, true, false, false},
		},
		{
			name:       "hallucinated slot scores zero",
			ref:        map[string][]string{},
			hyp:        map[string][]string{"year": {"2020"}},
			wantCor:    []float64{1, 1, 0, 1},
			wantActive: []bool{false, false, false, false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cor, active, cat := matcher.CompareSlotValues(tt.ref, tt.hyp, svc)
			assert.Equal(t, []bool{false, true, true, false}, cat, "slots stay in schema file order")
			assert.Equal(t, tt.wantActive, active)
			require.Len(t, cor, len(tt.wantCor))
			for i := range cor {
				assert.InDelta(t, tt.wantCor[i], cor[i], 1e-9, "slot %d", i)
			}
		})
	}
}

func TestActiveIntentAccuracyOf(t *testing.T) {
	ref := frameWithState("Media_1", "FindMovie", nil, nil)
	assert.Equal(t, 1.0, ActiveIntentAccuracyOf(ref, frameWithState("Media_1", "FindMovie", nil, nil)))
	assert.Equal(t, 0.0, ActiveIntentAccuracyOf(ref, frameWithState("Media_1", state.NoneIntent, nil, nil)))
}

func TestRequestedSlotsF1Of(t *testing.T) {
	ref := frameWithState("Media_1", "FindMovie", []string{"year", "actor"}, nil)
	hyp := frameWithState("Media_1", "FindMovie", []string{"year"}, nil)

	got := RequestedSlotsF1Of(ref, hyp)
	assert.InDelta(t, 1.0, got.Precision, 1e-9)
	assert.InDelta(t, 0.5, got.Recall, 1e-9)
	assert.InDelta(t, 2.0/3.0, got.F1, 1e-9)
}

func TestSlotTaggingF1Of(t *testing.T) {
	svc := mediaService(t)
	utterance := "find the big trip tonight"

	ref := frameWithState("Media_1", "FindMovie", nil, nil)
	ref.Slots = []state.SlotSpan{{Slot: "title", Start: 5, ExclusiveEnd: 17}}

	t.Run("state-only hypotheses are skipped", func(t *testing.T) {
		hyp := frameWithState("Media_1", "FindMovie", nil, nil)
		assert.Nil(t, SlotTaggingF1Of(ref, hyp, utterance, svc))
	})

	t.Run("matching span", func(t *testing.T) {
		hyp := frameWithState("Media_1", "FindMovie", nil, nil)
		hyp.Slots = []state.SlotSpan{{Slot: "title", Start: 5, ExclusiveEnd: 17}}
		got := SlotTaggingF1Of(ref, hyp, utterance, svc)
		require.NotNil(t, got)
		assert.InDelta(t, 1.0, got.F1, 1e-9)
	})

	t.Run("categorical spans are ignored", func(t *testing.T) {
		hyp := frameWithState("Media_1", "FindMovie", nil, nil)
		hyp.Slots = []state.SlotSpan{
			{Slot: "title", Start: 5, ExclusiveEnd: 17},
			{Slot: "genre", Start: 0, ExclusiveEnd: 4},
		}
		got := SlotTaggingF1Of(ref, hyp, utterance, svc)
		require.NotNil(t, got)
		assert.InDelta(t, 1.0, got.F1, 1e-9)
	})

	t.Run("wrong span boundaries miss", func(t *testing.T) {
		hyp := frameWithState("Media_1", "FindMovie", nil, nil)
		hyp.Slots = []state.SlotSpan{{Slot: "title", Start: 9, ExclusiveEnd: 17}}
		got := SlotTaggingF1Of(ref, hyp, utterance, svc)
		require.NotNil(t, got)
		assert.InDelta(t, 0.0, got.F1, 1e-9)
	})

	t.Run("out-of-range spans clamp or drop", func(t *testing.T) {
		hyp := frameWithState("Media_1", "FindMovie", nil, nil)
		hyp.Slots = []state.SlotSpan{
			{Slot: "title", Start: 5, ExclusiveEnd: 9999},
			{Slot: "actor", Start: 9999, ExclusiveEnd: 10000},
		}
		got := SlotTaggingF1Of(ref, hyp, utterance, svc)
		require.NotNil(t, got)
		assert.InDelta(t, 0.0, got.F1, 1e-9, "clamped span covers the utterance tail, dropped span adds nothing")
	})
}

func TestGoalAccuracies(t *testing.T) {
	svc := mediaService(t)
	matcher := Matcher{UseFuzzy: true, FuzzyThreshold: 0.9}

	t.Run("perfect frame", func(t *testing.T) {
		values := map[string][]string{"title": {"the big trip"}, "genre": {"comedy"}}
		ref := frameWithState("Media_1", "FindMovie", nil, values)
		hyp := frameWithState("Media_1", "FindMovie", nil, map[string][]string{"title": {"the big trip"}, "genre": {"comedy"}})

		goal := matcher.GoalAccuracies(ref, hyp, svc)
		for _, name := range []string{
			AverageGoalAccuracy, AverageCatAccuracy, AverageNoncatAccuracy,
			JointGoalAccuracy, JointCatAccuracy, JointNoncatAccuracy,
		} {
			require.True(t, goal[name].Defined, name)
			assert.InDelta(t, 1.0, goal[name].Value, 1e-9, name)
		}
	})

	t.Run("one wrong categorical slot zeroes the joint", func(t *testing.T) {
		ref := frameWithState("Media_1", "FindMovie", nil, map[string][]string{"title": {"the big trip"}, "genre": {"comedy"}})
		hyp := frameWithState("Media_1", "FindMovie", nil, map[string][]string{"title": {"the big trip"}, "genre": {"drama"}})

		goal := matcher.GoalAccuracies(ref, hyp, svc)
		assert.InDelta(t, 0.5, goal[AverageGoalAccuracy].Value, 1e-9)
		assert.InDelta(t, 0.0, goal[AverageCatAccuracy].Value, 1e-9)
		assert.InDelta(t, 1.0, goal[AverageNoncatAccuracy].Value, 1e-9)
		assert.InDelta(t, 0.0, goal[JointGoalAccuracy].Value, 1e-9)
		assert.InDelta(t, 0.0, goal[JointCatAccuracy].Value, 1e-9)
		assert.InDelta(t, 1.0, goal[JointNoncatAccuracy].Value, 1e-9)
	})

	t.Run("empty states leave averages undefined but joints perfect", func(t *testing.T) {
		ref := frameWithState("Media_1", state.NoneIntent, nil, map[string][]string{})
		hyp := frameWithState("Media_1", state.NoneIntent, nil, map[string][]string{})

		goal := matcher.GoalAccuracies(ref, hyp, svc)
		assert.False(t, goal[AverageGoalAccuracy].Defined)
		assert.False(t, goal[AverageCatAccuracy].Defined)
		assert.False(t, goal[AverageNoncatAccuracy].Defined)
		require.True(t, goal[JointGoalAccuracy].Defined)
		assert.InDelta(t, 1.0, goal[JointGoalAccuracy].Value, 1e-9)
	})

	t.Run("service without categorical slots never defines cat metrics", func(t *testing.T) {
		svc := musicService(t)
		ref := frameWithState("Music_1", "PlaySong", nil, map[string][]string{"song": {"yesterday"}})
		hyp := frameWithState("Music_1", "PlaySong", nil, map[string][]string{"song": {"yesterday"}})

		goal := matcher.GoalAccuracies(ref, hyp, svc)
		assert.False(t, goal[AverageCatAccuracy].Defined)
		assert.False(t, goal[JointCatAccuracy].Defined)
		require.True(t, goal[JointGoalAccuracy].Defined)
		assert.InDelta(t, 1.0, goal[JointGoalAccuracy].Value, 1e-9)
	})
}
