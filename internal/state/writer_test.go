package state

import (
	"path/filepath"
	"testing"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/decoder"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// restaurantCollection yields categorical slots [cuisine price_range],
// non-categorical slots [city time] and intents [FindRestaurants
// ReserveRestaurant] after canonical sorting. "rating" is a result-only
// slot and never part of the tracked state.
func restaurantCollection(t *testing.T) *schema.Collection {
	t.Helper()
	c, err := schema.NewCollection([]schema.ServiceDefinition{
		{
			ServiceName: "Restaurants_1",
			Slots: []schema.SlotDefinition{
				{Name: "city"},
				{Name: "cuisine", IsCategorical: true, PossibleValues: []string{"mexican", "indian", "italian"}},
				{Name: "price_range", IsCategorical: true, PossibleValues: []string{"cheap", "moderate", "pricey"}},
				{Name: "time"},
				{Name: "rating"},
			},
			Intents: []schema.IntentDefinition{
				{
					Name:          "FindRestaurants",
					RequiredSlots: []string{"city", "cuisine"},
					OptionalSlots: map[string]string{"price_range": "dontcare"},
					ResultSlots:   []string{"rating"},
				},
				{
					Name:          "ReserveRestaurant",
					RequiredSlots: []string{"time"},
				},
			},
		},
	})
	require.NoError(t, err)
	return c
}

// firstTurnPrediction decodes "find me indian food in san jose at 7 pm":
// intent FindRestaurants, cuisine=indian, price_range=dontcare and
// city=san jose (span tokens 5..6).
func firstTurnPrediction() *decoder.Prediction {
	return &decoder.Prediction{
		DialogueID:    "1_00000",
		TurnIndex:     0,
		ServiceName:   "Restaurants_1",
		IsRealExample: true,
		IntentStatus:  1,
		ReqSlotStatus: []float32{0.2, 0.9, 0.4, 0.8},
		ReqSlotMask:   []bool{true, true, true, true},

		CatSlotStatus: []int{schema.StatusActive, schema.StatusDontcare},
		CatSlotValue:  []int{0, 1},

		NoncatSlotStatus: []int{schema.StatusActive, schema.StatusOff},
		NoncatSlotStart:  []int{5, 0},
		NoncatSlotEnd:    []int{6, 0},

		AlignmentStart: []int{0, 5, 8, 15, 20, 23, 27, 32, 35, 37},
		AlignmentEnd:   []int{4, 7, 14, 19, 22, 26, 31, 34, 36, 39},
	}
}

// secondTurnPrediction decodes "book it for 7 pm please": everything
// carried over, time=7 pm (span tokens 3..4) and cuisine revised to
// italian.
func secondTurnPrediction() *decoder.Prediction {
	return &decoder.Prediction{
		DialogueID:    "1_00000",
		TurnIndex:     2,
		ServiceName:   "Restaurants_1",
		IsRealExample: true,
		IntentStatus:  2,
		ReqSlotStatus: []float32{0.1, 0.1, 0.1, 0.1},
		ReqSlotMask:   []bool{true, true, true, true},

		CatSlotStatus: []int{schema.StatusActive, schema.StatusOff},
		CatSlotValue:  []int{1, 0},

		NoncatSlotStatus: []int{schema.StatusOff, schema.StatusActive},
		NoncatSlotStart:  []int{0, 3},
		NoncatSlotEnd:    []int{0, 4},

		AlignmentStart: []int{0, 5, 8, 12, 14},
		AlignmentEnd:   []int{4, 7, 11, 13, 16},
	}
}

func restaurantDialogue() *Dialogue {
	return &Dialogue{
		DialogueID: "1_00000",
		Services:   []string{"Restaurants_1"},
		Turns: []Turn{
			{
				Speaker:   SpeakerUser,
				Utterance: "find me indian food in san jose at 7 pm",
				Frames:    []Frame{{Service: "Restaurants_1", Slots: []SlotSpan{{Slot: "city", Start: 23, ExclusiveEnd: 31}}}},
			},
			{
				Speaker:   SpeakerSystem,
				Utterance: "shall i book a table?",
				Frames:    []Frame{{Service: "Restaurants_1"}},
			},
			{
				Speaker:   SpeakerUser,
				Utterance: "book it for 7 pm please",
				Frames:    []Frame{{Service: "Restaurants_1"}},
			},
		},
	}
}

func TestFrameStateDecoding(t *testing.T) {
	services := restaurantCollection(t)
	svc, ok := services.ByName("Restaurants_1")
	require.True(t, ok)
	w := NewWriter(services, 0.5)

	st, err := w.FrameState(firstTurnPrediction(), svc, "find me indian food in san jose at 7 pm", map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "FindRestaurants", st.ActiveIntent)
	// StateSlots order is [cuisine price_range city time]; probabilities
	// above 0.5 sit at price_range and time.
	assert.Equal(t, []string{"price_range", "time"}, st.RequestedSlots)
	assert.Equal(t, map[string][]string{
		"cuisine":     {"indian"},
		"price_range": {"dontcare"},
		"city":        {"san jose"},
	}, st.SlotValues)
}

func TestFrameStateNoneIntent(t *testing.T) {
	services := restaurantCollection(t)
	svc, _ := services.ByName("Restaurants_1")
	w := NewWriter(services, 0.5)

	pred := firstTurnPrediction()
	pred.IntentStatus = 0
	st, err := w.FrameState(pred, svc, "find me indian food in san jose at 7 pm", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, NoneIntent, st.ActiveIntent)

	pred.IntentStatus = 5
	_, err = w.FrameState(pred, svc, "find me indian food in san jose at 7 pm", map[string]string{})
	assert.Error(t, err, "intent class beyond the service's intents")
}

func TestFrameStateSkipsNonAlignableSpans(t *testing.T) {
	services := restaurantCollection(t)
	svc, _ := services.ByName("Restaurants_1")
	w := NewWriter(services, 0.5)

	pred := firstTurnPrediction()
	pred.AlignmentStart[5] = -1
	st, err := w.FrameState(pred, svc, "find me indian food in san jose at 7 pm", map[string]string{})
	require.NoError(t, err)
	_, present := st.SlotValues["city"]
	assert.False(t, present, "span starting on a non-alignable token is dropped")
}

func TestFrameStateRejectsBadValueIndex(t *testing.T) {
	services := restaurantCollection(t)
	svc, _ := services.ByName("Restaurants_1")
	w := NewWriter(services, 0.5)

	pred := firstTurnPrediction()
	pred.CatSlotValue[0] = 7
	_, err := w.FrameState(pred, svc, "find me indian food in san jose at 7 pm", map[string]string{})
	assert.Error(t, err)
}

func TestPredictDialogueCarryover(t *testing.T) {
	services := restaurantCollection(t)
	w := NewWriter(services, 0.5)
	d := restaurantDialogue()
	index := IndexPredictions([]*decoder.Prediction{firstTurnPrediction(), secondTurnPrediction()})

	require.NoError(t, w.PredictDialogue(d, index))

	first := d.Turns[0].Frames[0].State
	require.NotNil(t, first)
	assert.Equal(t, map[string][]string{
		"cuisine":     {"indian"},
		"price_range": {"dontcare"},
		"city":        {"san jose"},
	}, first.SlotValues)
	assert.Nil(t, d.Turns[0].Frames[0].Slots, "span annotations are replaced by predicted state")

	assert.Nil(t, d.Turns[1].Frames[0].State, "system turns keep no state")

	second := d.Turns[2].Frames[0].State
	require.NotNil(t, second)
	assert.Equal(t, "ReserveRestaurant", second.ActiveIntent)
	assert.Equal(t, map[string][]string{
		"cuisine":     {"italian"},
		"price_range": {"dontcare"},
		"city":        {"san jose"},
		"time":        {"7 pm"},
	}, second.SlotValues, "earlier values carry over, revised ones overwrite")

	_, leaked := first.SlotValues["time"]
	assert.False(t, leaked, "later turns never mutate earlier snapshots")
}

func TestPredictDialogueMissingPrediction(t *testing.T) {
	services := restaurantCollection(t)
	w := NewWriter(services, 0.5)

	err := w.PredictDialogue(restaurantDialogue(), PredictionIndex{})
	assert.ErrorContains(t, err, "no prediction")
}

func TestIndexPredictionsSkipsPadding(t *testing.T) {
	padding := firstTurnPrediction()
	padding.IsRealExample = false

	index := IndexPredictions([]*decoder.Prediction{padding, secondTurnPrediction()})
	assert.Len(t, index, 1)
	_, ok := index[FrameKey{DialogueID: "1_00000", TurnIndex: 2, Service: "Restaurants_1"}]
	assert.True(t, ok)
}

func TestWriteHypothesisFiles(t *testing.T) {
	services := restaurantCollection(t)
	w := NewWriter(services, 0.5)

	inputDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "predictions")
	inputPath := filepath.Join(inputDir, "dialogues_001.json")
	require.NoError(t, SaveDialogueFile(inputPath, []*Dialogue{restaurantDialogue()}))

	preds := []*decoder.Prediction{firstTurnPrediction(), secondTurnPrediction()}
	require.NoError(t, w.WriteHypothesisFiles([]string{inputPath}, outputDir, preds))

	written, err := LoadDialogueFile(filepath.Join(outputDir, "dialogues_001.json"))
	require.NoError(t, err)
	require.Len(t, written, 1)
	require.NotNil(t, written[0].Turns[0].Frames[0].State)
	assert.Equal(t, "FindRestaurants", written[0].Turns[0].Frames[0].State.ActiveIntent)

	err = w.WriteHypothesisFiles([]string{inputPath}, outputDir, nil)
	assert.Error(t, err, "missing predictions fail the run")
}
