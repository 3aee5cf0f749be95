package eval

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/decoder"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/features"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/model"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/schema"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/state"
	"github.com/Meesho/BharatMLStack/schemaflow/pkg/metric"
)

// Config wires one evaluation run.
type Config struct {
	Services *schema.Collection
	Model    *model.StateModel

	// Dataset tags the run ("train", "dev", "test") and prefixes
	// example ids.
	Dataset string

	ExamplesPath  string
	EncodingsPath string

	// DialoguesDir holds the ground-truth dialogues_*.json files.
	DialoguesDir string

	// SchemaPath and TrainSchemaPath split services into seen and
	// unseen for scoped aggregation.
	SchemaPath      string
	TrainSchemaPath string

	// OutputDir receives the hypothesis files, the per-frame metrics
	// and, unless MetricsPath overrides it, the aggregate metrics.
	OutputDir   string
	MetricsPath string

	BatchSize              int
	Workers                int
	RequestedSlotThreshold float64
	UseFuzzy               bool
	FuzzyThreshold         float64
}

// Pipeline scores an encoded dataset end to end: batched forward
// passes, decoding, hypothesis writing and metric aggregation.
type Pipeline struct {
	cfg Config
	dec *decoder.Decoder
}

func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Services == nil || cfg.Model == nil {
		return nil, fmt.Errorf("pipeline needs a schema collection and a model")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("pipeline batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = filepath.Join(cfg.OutputDir, "eval_metrics.json")
	}
	return &Pipeline{cfg: cfg, dec: decoder.New(cfg.Services, cfg.Dataset)}, nil
}

// Run executes the full pipeline and returns the #ALL_SERVICES
// aggregate.
func (p *Pipeline) Run() (Aggregate, error) {
	started := time.Now()

	examples, err := features.LoadDataset(p.cfg.ExamplesPath, p.cfg.EncodingsPath, p.cfg.Model.Capacities())
	if err != nil {
		return nil, err
	}
	log.Info().Int("examples", len(examples)).Str("dataset", p.cfg.Dataset).Msg("dataset loaded")

	preds, err := p.Score(examples)
	if err != nil {
		return nil, err
	}

	inputFiles, err := filepath.Glob(filepath.Join(p.cfg.DialoguesDir, "dialogues_*.json"))
	if err != nil {
		return nil, fmt.Errorf("dialogues dir %s: %w", p.cfg.DialoguesDir, err)
	}
	if len(inputFiles) == 0 {
		return nil, fmt.Errorf("dialogues dir %s: no dialogues_*.json files", p.cfg.DialoguesDir)
	}

	writer := state.NewWriter(p.cfg.Services, p.cfg.RequestedSlotThreshold)
	if err := writer.WriteHypothesisFiles(inputFiles, p.cfg.OutputDir, preds); err != nil {
		return nil, err
	}

	inDomain, err := InDomainServices(p.cfg.SchemaPath, p.cfg.TrainSchemaPath)
	if err != nil {
		return nil, err
	}
	ref, err := LoadDatasetDict([]string{filepath.Join(p.cfg.DialoguesDir, "dialogues_*.json")})
	if err != nil {
		return nil, err
	}
	hyp, err := LoadDatasetDict([]string{filepath.Join(p.cfg.OutputDir, "*.json")})
	if err != nil {
		return nil, err
	}

	matcher := Matcher{UseFuzzy: p.cfg.UseFuzzy, FuzzyThreshold: p.cfg.FuzzyThreshold}
	aggregates, perFrame, err := GetMetrics(ref, hyp, p.cfg.Services, inDomain, matcher)
	if err != nil {
		return nil, err
	}
	metric.Count(metric.EvalFrameCount, int64(len(perFrame)),
		metric.BuildTag(metric.NewTag(metric.TagDataset, p.cfg.Dataset)))

	for _, scope := range []string{ScopeAllServices, ScopeSeenServices, ScopeUnseenServices} {
		log.Info().Str("scope", scope).Interface("metrics", aggregates[scope]).Msg("dialogue metrics")
	}

	if err := WriteAggregates(p.cfg.MetricsPath, aggregates); err != nil {
		return nil, err
	}
	if err := WritePerFrameDialogues(p.cfg.OutputDir, hyp); err != nil {
		return nil, err
	}

	log.Info().
		Int("frames", len(perFrame)).
		Dur("elapsed", time.Since(started)).
		Str("metrics_path", p.cfg.MetricsPath).
		Msg("evaluation finished")
	return aggregates[ScopeAllServices], nil
}

// Score runs batched forward passes over the examples with the
// configured worker count. Prediction order matches example order.
func (p *Pipeline) Score(examples []*features.TurnExample) ([]*decoder.Prediction, error) {
	batches := features.Partition(examples, p.cfg.BatchSize)
	batchPreds := make([][]*decoder.Prediction, len(batches))
	batchErrs := make([]error, len(batches))

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(batches) {
		workers = len(batches)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				batchPreds[idx], batchErrs[idx] = p.scoreBatch(batches[idx])
			}
		}()
	}
	for idx := range batches {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	preds := make([]*decoder.Prediction, 0, len(examples))
	for idx, err := range batchErrs {
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", idx, err)
		}
		preds = append(preds, batchPreds[idx]...)
	}
	return preds, nil
}

func (p *Pipeline) scoreBatch(batch []*features.TurnExample) ([]*decoder.Prediction, error) {
	started := time.Now()
	out, err := p.cfg.Model.Forward(batch)
	if err != nil {
		return nil, err
	}
	preds, err := p.dec.DecodeBatch(out, batch)
	if err != nil {
		return nil, err
	}
	metric.Timing(metric.BatchScoreLatency, time.Since(started), metric.BuildTag(
		metric.NewTag(metric.TagDataset, p.cfg.Dataset),
		metric.NewTag(metric.TagStatusMode, p.cfg.Model.Mode().String()),
	))
	return preds, nil
}
