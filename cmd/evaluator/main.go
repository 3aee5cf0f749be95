package main

import (
	"github.com/rs/zerolog/log"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/config"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/config/enums"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/eval"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/model"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/schema"
	"github.com/Meesho/BharatMLStack/schemaflow/pkg/logger"
	"github.com/Meesho/BharatMLStack/schemaflow/pkg/metric"
)

func main() {
	cfg := config.Init().Config
	logger.Init()
	metric.Init()
	schema.Init()

	services, err := schema.LoadCollection(cfg.TrackerSchemaPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Loading schema collection failed")
	}
	emb, err := schema.LoadEmbeddings(cfg.TrackerEmbeddingsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Loading schema embeddings failed")
	}
	if services.Len() > emb.NumServices() {
		log.Fatal().Int("schemaServices", services.Len()).Int("embeddingServices", emb.NumServices()).
			Msg("Embeddings archive covers fewer services than the schema")
	}
	for _, svc := range services.Services() {
		if err := emb.Caps.ValidateService(svc); err != nil {
			log.Fatal().Err(err).Msg("Schema service exceeds model capacities")
		}
	}
	m, err := model.NewStateModel(model.Config{
		Caps:        emb.Caps,
		Mode:        enums.StatusModeFromConfig(cfg.TrackerStatusMode),
		Preloaded:   emb,
		WeightsPath: cfg.TrackerWeightsPath,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Assembling state model failed")
	}

	dyn := config.Dynamic()
	pipeline, err := eval.NewPipeline(eval.Config{
		Services:               services,
		Model:                  m,
		Dataset:                cfg.TrackerDataset,
		ExamplesPath:           cfg.TrackerExamplesPath,
		EncodingsPath:          cfg.TrackerEncodingsPath,
		DialoguesDir:           cfg.TrackerDialoguesDir,
		SchemaPath:             cfg.TrackerSchemaPath,
		TrainSchemaPath:        cfg.TrackerTrainSchemaPath,
		OutputDir:              cfg.TrackerOutputDir,
		BatchSize:              cfg.TrackerBatchSize,
		Workers:                cfg.TrackerWorkers,
		RequestedSlotThreshold: dyn.RequestedSlotThreshold,
		UseFuzzy:               true,
		FuzzyThreshold:         dyn.FuzzyMatchThreshold,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Building eval pipeline failed")
	}
	all, err := pipeline.Run()
	if err != nil {
		log.Fatal().Err(err).Msg("Eval pipeline failed")
	}
	log.Info().Interface("metrics", all).Msg("Evaluation finished")
}
