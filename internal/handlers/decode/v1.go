// Package decode serves single-turn dialogue state decoding over HTTP.
package decode

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/cache"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/config"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/config/enums"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/decoder"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/features"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/model"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/schema"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/state"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/tensor"
	"github.com/Meesho/BharatMLStack/schemaflow/pkg/metric"
	"github.com/Meesho/BharatMLStack/schemaflow/pkg/utils"
)

const cacheKeyPrefix = "decode"

var (
	v1   *HandlerV1
	once sync.Once
)

// Request is one user turn of one service frame with the utterance
// encodings inlined. Carry holds the slot values accumulated over the
// dialogue so far; pass the carry of the previous response to keep
// state across turns.
type Request struct {
	DialogueID   string            `json:"dialogue_id" binding:"required"`
	TurnIndex    int               `json:"turn_index"`
	Service      string            `json:"service" binding:"required"`
	Utterance    string            `json:"utterance" binding:"required"`
	NumTokens    int               `json:"num_tokens" binding:"required"`
	Pooled       []float32         `json:"pooled" binding:"required"`
	Tokens       [][]float32       `json:"tokens" binding:"required"`
	StartCharIdx []int             `json:"start_char_idx"`
	EndCharIdx   []int             `json:"end_char_idx"`
	Carry        map[string]string `json:"carry"`
}

// Response carries the decoded frame state plus the updated carry.
type Response struct {
	ExampleID string            `json:"example_id"`
	State     *state.FrameState `json:"state"`
	Carry     map[string]string `json:"carry"`
}

type HandlerV1 struct {
	services *schema.Collection
	model    *model.StateModel
	dec      *decoder.Decoder
	cache    cache.Cache
}

// InitV1 assembles the singleton handler from the application config.
// Panics when the schema or model artifacts cannot be loaded.
func InitV1() *HandlerV1 {
	once.Do(func() {
		cfg := config.Instance().Config

		services, err := schema.LoadCollection(cfg.TrackerSchemaPath)
		if err != nil {
			log.Panic().Err(err).Msg("Loading schema collection failed")
		}
		emb, err := schema.LoadEmbeddings(cfg.TrackerEmbeddingsPath)
		if err != nil {
			log.Panic().Err(err).Msg("Loading schema embeddings failed")
		}
		if services.Len() > emb.NumServices() {
			log.Panic().Int("schemaServices", services.Len()).Int("embeddingServices", emb.NumServices()).
				Msg("Embeddings archive covers fewer services than the schema")
		}
		for _, svc := range services.Services() {
			if err := emb.Caps.ValidateService(svc); err != nil {
				log.Panic().Err(err).Msg("Schema service exceeds model capacities")
			}
		}
		m, err := model.NewStateModel(model.Config{
			Caps:        emb.Caps,
			Mode:        enums.StatusModeFromConfig(cfg.TrackerStatusMode),
			Preloaded:   emb,
			WeightsPath: cfg.TrackerWeightsPath,
		})
		if err != nil {
			log.Panic().Err(err).Msg("Assembling state model failed")
		}
		cache.Init(cfg.InMemoryCacheSizeInBytes, cfg.AppGcPercentage)

		v1 = &HandlerV1{
			services: services,
			model:    m,
			dec:      decoder.New(services, cfg.TrackerDataset),
			cache:    cache.Instance(),
		}
		log.Info().Int("services", services.Len()).Msg("Decode handler initialized")
	})
	return v1
}

// Decode scores one user turn and returns the frame state.
func (h *HandlerV1) Decode(c *gin.Context) {
	started := time.Now()
	dyn := config.Dynamic()

	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		metric.Incr(metric.DecodeRequest4xx, nil)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	svc, ok := h.services.ByName(req.Service)
	if !ok {
		metric.Incr(metric.DecodeRequest4xx, nil)
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service " + req.Service})
		return
	}

	tags := metric.BuildTag(
		metric.NewTag(metric.TagDialogueService, svc.Name),
		metric.NewTag(metric.TagStatusMode, h.model.Mode().String()),
	)
	metric.Incr(metric.DecodeRequestCount, tags)
	defer func() { metric.Timing(metric.DecodeRequestLatency, time.Since(started), tags) }()

	if utils.SampledForToday(req.DialogueID, dyn.DebugLogPercentage) {
		log.Debug().Str("dialogue_id", req.DialogueID).Int("turn", req.TurnIndex).
			Str("service", req.Service).Msg("Decode request sampled")
	}

	canonical, err := json.Marshal(&req)
	if err != nil {
		metric.Incr(metric.DecodeRequest5xx, tags)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "request not serializable"})
		return
	}
	cacheKey := utils.CacheKey(cacheKeyPrefix, canonical)

	if dyn.CacheEnabled {
		if body, cacheErr := h.cache.Get(cacheKey); cacheErr == nil {
			metric.Incr(metric.CacheRequestCount, metric.BuildTag(
				metric.NewTag(metric.TagCacheName, cacheKeyPrefix),
				metric.NewTag(metric.TagCacheResult, metric.TagValueCacheHit)))
			c.Data(http.StatusOK, "application/json", body)
			return
		}
		metric.Incr(metric.CacheRequestCount, metric.BuildTag(
			metric.NewTag(metric.TagCacheName, cacheKeyPrefix),
			metric.NewTag(metric.TagCacheResult, metric.TagValueCacheMiss)))
	}

	ex, err := h.buildExample(&req, svc)
	if err != nil {
		metric.Incr(metric.DecodeRequest4xx, tags)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch := []*features.TurnExample{ex}
	out, err := h.model.Forward(batch)
	if err != nil {
		metric.Incr(metric.DecodeRequest5xx, tags)
		log.Error().Err(err).Msg("Forward pass failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scoring failed"})
		return
	}
	preds, err := h.dec.DecodeBatch(out, batch)
	if err != nil {
		metric.Incr(metric.DecodeRequest5xx, tags)
		log.Error().Err(err).Msg("Decoding model output failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "decoding failed"})
		return
	}

	carry := req.Carry
	if carry == nil {
		carry = make(map[string]string)
	}
	writer := state.NewWriter(h.services, dyn.RequestedSlotThreshold)
	frameState, err := writer.FrameState(preds[0], svc, req.Utterance, carry)
	if err != nil {
		metric.Incr(metric.DecodeRequest5xx, tags)
		log.Error().Err(err).Msg("State assembly failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state assembly failed"})
		return
	}

	body, err := json.Marshal(Response{ExampleID: preds[0].ExampleID, State: frameState, Carry: carry})
	if err != nil {
		metric.Incr(metric.DecodeRequest5xx, tags)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "response not serializable"})
		return
	}
	if dyn.CacheEnabled {
		if cacheErr := h.cache.SetEx(cacheKey, body, dyn.CacheTTLSeconds); cacheErr != nil {
			log.Warn().Err(cacheErr).Msg("Caching decode response failed")
		}
	}
	c.Data(http.StatusOK, "application/json", body)
}

// buildExample shapes the request into the padded example the model
// scores. Shape errors come back to the caller as 400s.
func (h *HandlerV1) buildExample(req *Request, svc *schema.Service) (*features.TurnExample, error) {
	caps := h.model.Capacities()

	d1, d2, err := parseDialogueID(req.DialogueID)
	if err != nil {
		return nil, err
	}
	if len(req.Pooled) != caps.EmbeddingDim {
		return nil, fmt.Errorf("pooled encoding dim %d, want %d", len(req.Pooled), caps.EmbeddingDim)
	}
	if len(req.Tokens) < req.NumTokens || len(req.Tokens) > caps.MaxSeqLength {
		return nil, fmt.Errorf("token encoding rows %d outside [%d, %d]",
			len(req.Tokens), req.NumTokens, caps.MaxSeqLength)
	}
	tokens := tensor.NewMatrix(caps.MaxSeqLength, caps.EmbeddingDim)
	for i, row := range req.Tokens {
		if len(row) != caps.EmbeddingDim {
			return nil, fmt.Errorf("token row %d dim %d, want %d", i, len(row), caps.EmbeddingDim)
		}
		copy(tokens.Row(i), row)
	}

	valueCounts := make([]int, len(svc.CategoricalSlots))
	for i, slot := range svc.CategoricalSlots {
		valueCounts[i] = len(svc.CategoricalValues[slot])
	}
	ex := &features.TurnExample{
		ExampleIDNum:     [4]int{d1, d2, req.TurnIndex, svc.ID},
		ServiceID:        svc.ID,
		IsRealExample:    true,
		NumTokens:        req.NumTokens,
		NumIntents:       len(svc.Intents),
		NumCatSlots:      len(svc.CategoricalSlots),
		NumCatSlotValues: valueCounts,
		NumNoncatSlots:   len(svc.NoncategoricalSlots),
		NumSlots:         len(svc.CategoricalSlots) + len(svc.NoncategoricalSlots),
		StartCharIdx:     req.StartCharIdx,
		EndCharIdx:       req.EndCharIdx,
		Pooled:           req.Pooled,
		Tokens:           tokens,
	}
	if err := ex.Prepare(caps); err != nil {
		return nil, err
	}
	return ex, nil
}

func parseDialogueID(id string) (int, int, error) {
	parts := strings.SplitN(id, "_", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("dialogue id %q is not of the form <n>_<nnnnn>", id)
	}
	d1, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("dialogue id %q: %w", id, err)
	}
	d2, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("dialogue id %q: %w", id, err)
	}
	return d1, d2, nil
}
