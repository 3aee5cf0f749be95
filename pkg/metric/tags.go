package metric

// Tag is a single statsd tag. Use NewTag/BuildTag to produce the
// "key:value" slices the DataDog client expects.
type Tag struct {
	Key   string
	Value string
}

const (
	TagEnv             = "env"
	TagService         = "service"
	TagMethod          = "method"
	TagStatusCode      = "status_code"
	TagCacheName       = "cache_name"
	TagCacheResult     = "cache_result"
	TagDialogueService = "dialogue_service"
	TagStatusMode      = "status_mode"
	TagDataset         = "dataset"

	TagValueCacheHit  = "hit"
	TagValueCacheMiss = "miss"
)

func NewTag(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

func BuildTag(tags ...Tag) []string {
	built := make([]string, 0, len(tags))
	for _, tag := range tags {
		built = append(built, TagAsString(tag.Key, tag.Value))
	}
	return built
}

func TagAsString(key, value string) string {
	return key + ":" + value
}
