package config

// Config is the static application configuration, resolved once at boot
// from environment variables (and an optional config file).
type Config struct {
	ApplicationEnv      string `mapstructure:"app_env"`
	ApplicationLogLevel string `mapstructure:"app_log_level"`
	ApplicationName     string `mapstructure:"app_name"`
	ApplicationPort     int    `mapstructure:"app_port"`
	AppGcPercentage     int    `mapstructure:"app_gc_percentage"`

	//tracker-config
	TrackerSchemaPath      string `mapstructure:"tracker_schemaPath"`
	TrackerTrainSchemaPath string `mapstructure:"tracker_trainSchemaPath"`
	TrackerEmbeddingsPath  string `mapstructure:"tracker_embeddingsPath"`
	TrackerWeightsPath     string `mapstructure:"tracker_weightsPath"`
	TrackerExamplesPath    string `mapstructure:"tracker_examplesPath"`
	TrackerEncodingsPath   string `mapstructure:"tracker_encodingsPath"`
	TrackerDialoguesDir    string `mapstructure:"tracker_dialoguesDir"`
	TrackerOutputDir       string `mapstructure:"tracker_outputDir"`
	TrackerDataset         string `mapstructure:"tracker_dataset"`
	TrackerStatusMode      string `mapstructure:"tracker_statusMode"`
	TrackerBatchSize       int    `mapstructure:"tracker_batchSize"`
	TrackerWorkers         int    `mapstructure:"tracker_workers"`

	//in-memory-cache-config
	InMemoryCacheSizeInBytes int `mapstructure:"in-memory-cache_size-in-bytes"`

	//auth-config
	AuthToken string `mapstructure:"auth_token"`

	//etcd-config
	EtcdWatcherEnabled bool   `mapstructure:"etcd_watcherEnabled"`
	EtcdServer         string `mapstructure:"etcd_server"`
	EtcdUsername       string `mapstructure:"etcd_username"`
	EtcdPassword       string `mapstructure:"etcd_password"`
	EtcdBasePath       string `mapstructure:"etcd_basePath"`
}

// DynamicConfig carries runtime knobs that may be swapped while the
// server is running (etcd watch). Readers must go through the holder in
// this package, never retain the struct.
type DynamicConfig struct {
	RequestedSlotThreshold float64 `json:"requested_slot_threshold" mapstructure:"requested_slot_threshold"`
	FuzzyMatchThreshold    float64 `json:"fuzzy_match_threshold" mapstructure:"fuzzy_match_threshold"`
	CacheTTLSeconds        int     `json:"cache_ttl_seconds" mapstructure:"cache_ttl_seconds"`
	CacheEnabled           bool    `json:"cache_enabled" mapstructure:"cache_enabled"`
	DebugLogPercentage     int     `json:"debug_log_percentage" mapstructure:"debug_log_percentage"`
}

type AppConfig struct {
	Config        Config
	DynamicConfig DynamicConfig
}

func (a *AppConfig) GetStaticConfig() interface{} {
	return &a.Config
}

func (a *AppConfig) GetDynamicConfig() interface{} {
	return &a.DynamicConfig
}

// DefaultDynamicConfig is the boot-time dynamic config, used until (and
// unless) the etcd watcher delivers an override.
func DefaultDynamicConfig() DynamicConfig {
	return DynamicConfig{
		RequestedSlotThreshold: 0.5,
		FuzzyMatchThreshold:    0.9,
		CacheTTLSeconds:        300,
		CacheEnabled:           true,
	}
}
