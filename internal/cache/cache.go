// Package cache wraps a freecache store behind a byte-keyed interface
// and publishes occupancy metrics on a fixed interval.
package cache

import (
	"time"

	"github.com/coocood/freecache"

	"github.com/Meesho/BharatMLStack/schemaflow/pkg/metric"
)

const (
	metricUpdateInterval = 1 * time.Minute
	infiniteExpiry       = -1
)

// Gauge names published by every cache instance.
const (
	HitRate       = "in_memory_cache_hit_rate"
	ItemCount     = "in_memory_cache_item_count"
	EvacuateCount = "in_memory_cache_evacuate_count"
	ExpiryCount   = "in_memory_cache_expiry_count"
)

type Cache interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	SetEx(key, value []byte, ttlSeconds int) error
	Delete(key []byte) bool
}

type V1 struct {
	cacheName  string
	inMemCache *freecache.Cache
}

func newV1(cacheName string, sizeInBytes int) *V1 {
	c := &V1{
		cacheName:  cacheName,
		inMemCache: freecache.NewCache(sizeInBytes),
	}
	go c.publishMetric()
	return c
}

func (c *V1) Get(key []byte) ([]byte, error) {
	return c.inMemCache.Get(key)
}

func (c *V1) Set(key, value []byte) error {
	return c.inMemCache.Set(key, value, infiniteExpiry)
}

func (c *V1) SetEx(key, value []byte, ttlSeconds int) error {
	return c.inMemCache.Set(key, value, ttlSeconds)
}

func (c *V1) Delete(key []byte) bool {
	return c.inMemCache.Del(key)
}

// publishMetric reports the cache gauges every metricUpdateInterval.
func (c *V1) publishMetric() {
	ticker := time.NewTicker(metricUpdateInterval)
	cacheMetricTags := metric.BuildTag(metric.NewTag(metric.TagCacheName, c.cacheName))
	defer ticker.Stop()
	for range ticker.C {
		metric.Gauge(HitRate, c.inMemCache.HitRate(), cacheMetricTags)
		metric.Gauge(ItemCount, float64(c.inMemCache.EntryCount()), cacheMetricTags)
		metric.Gauge(EvacuateCount, float64(c.inMemCache.EvacuateCount()), cacheMetricTags)
		metric.Gauge(ExpiryCount, float64(c.inMemCache.ExpiredCount()), cacheMetricTags)
	}
}
