package config

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	once    sync.Once
	appConf *AppConfig
	dynConf atomic.Pointer[DynamicConfig]
)

// InitEnv wires viper to the process environment. Safe to call more than
// once; later callers see the same viper state.
func InitEnv() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// Init resolves the static config from the environment and seeds the
// dynamic config with defaults. Panics on unmarshal failure.
func Init() *AppConfig {
	once.Do(func() {
		InitEnv()
		bindEnvVars()

		cfg := &AppConfig{DynamicConfig: DefaultDynamicConfig()}
		if err := viper.Unmarshal(&cfg.Config); err != nil {
			log.Panic().Msgf("Failed to unmarshal config from environment: %v", err)
		}
		appConf = cfg
		seeded := cfg.DynamicConfig
		dynConf.Store(&seeded)
		log.Info().Msg("Configuration loaded from environment variables")
	})
	return appConf
}

// Instance returns the initialized config. Panics when called before Init.
func Instance() *AppConfig {
	if appConf == nil {
		log.Panic().Msg("Config not initialized, call Init first")
	}
	return appConf
}

// Dynamic returns the current dynamic config snapshot.
func Dynamic() DynamicConfig {
	ptr := dynConf.Load()
	if ptr == nil {
		return DefaultDynamicConfig()
	}
	return *ptr
}

// SwapDynamic atomically replaces the dynamic config. Invoked by the etcd
// watcher callback.
func SwapDynamic(next DynamicConfig) {
	dynConf.Store(&next)
	log.Info().Msgf("Dynamic config swapped: %+v", next)
}

func bindEnvVars() {
	// Application config
	viper.BindEnv("app_env", "APP_ENV")
	viper.BindEnv("app_log_level", "APP_LOG_LEVEL")
	viper.BindEnv("app_name", "APP_NAME")
	viper.BindEnv("app_port", "APP_PORT")
	viper.BindEnv("app_gc_percentage", "APP_GC_PERCENTAGE")

	// Tracker config
	viper.BindEnv("tracker_schemaPath", "TRACKER_SCHEMA_PATH")
	viper.BindEnv("tracker_trainSchemaPath", "TRACKER_TRAIN_SCHEMA_PATH")
	viper.BindEnv("tracker_embeddingsPath", "TRACKER_EMBEDDINGS_PATH")
	viper.BindEnv("tracker_weightsPath", "TRACKER_WEIGHTS_PATH")
	viper.BindEnv("tracker_examplesPath", "TRACKER_EXAMPLES_PATH")
	viper.BindEnv("tracker_encodingsPath", "TRACKER_ENCODINGS_PATH")
	viper.BindEnv("tracker_dialoguesDir", "TRACKER_DIALOGUES_DIR")
	viper.BindEnv("tracker_outputDir", "TRACKER_OUTPUT_DIR")
	viper.BindEnv("tracker_dataset", "TRACKER_DATASET")
	viper.BindEnv("tracker_statusMode", "TRACKER_STATUS_MODE")
	viper.BindEnv("tracker_batchSize", "TRACKER_BATCH_SIZE")
	viper.BindEnv("tracker_workers", "TRACKER_WORKERS")

	// In-memory cache config
	viper.BindEnv("in-memory-cache_size-in-bytes", "IN_MEMORY_CACHE_SIZE_IN_BYTES")

	// Auth config
	viper.BindEnv("auth_token", "AUTH_TOKEN")

	// ETCD config
	viper.BindEnv("etcd_watcherEnabled", "ETCD_WATCHER_ENABLED")
	viper.BindEnv("etcd_server", "ETCD_SERVER")
	viper.BindEnv("etcd_username", "ETCD_USERNAME")
	viper.BindEnv("etcd_password", "ETCD_PASSWORD")
	viper.BindEnv("etcd_basePath", "ETCD_BASE_PATH")
}
