package cache

import (
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	once     sync.Once
	instance Cache
)

const responseCacheName = "decode_response_cache"

// Init builds the process-wide response cache. Panics when sizeInBytes
// is not positive. gcPercentage values above zero are applied to the
// runtime.
func Init(sizeInBytes, gcPercentage int) {
	once.Do(func() {
		if sizeInBytes <= 0 {
			log.Panic().Msgf("cache size %d bytes is not usable, set IN_MEMORY_CACHE_SIZE_IN_BYTES", sizeInBytes)
		}
		instance = newV1(responseCacheName, sizeInBytes)
		if gcPercentage > 0 {
			debug.SetGCPercent(gcPercentage)
		}
		log.Info().Msgf("In-memory cache initialized with %d bytes", sizeInBytes)
	})
}

// Instance returns the cache. Init must have run first.
func Instance() Cache {
	if instance == nil {
		log.Panic().Msg("cache not initialized, call Init first")
	}
	return instance
}
