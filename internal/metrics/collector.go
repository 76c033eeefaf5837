package metrics

import (
	"time"

	"media-cache/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// StatsProviderFunc adapts a function to StatsProvider.
type StatsProviderFunc func() Stats

// GetStats calls f.
func (f StatsProviderFunc) GetStats() Stats {
	return f()
}

// Stats holds the current sizes of the cache stores and the metadata store
type Stats struct {
	Assets           int
	AnalysisResults  int
	PoolMetadata     int
	PoolDescriptors  int
	VaultDescriptors int
	ImageCacheBytes  int64
	AnalysisPending  int
}

// Collector periodically collects and updates gauge metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	LibraryAssetsTotal.Set(float64(stats.Assets))
	LibraryAnalysisResultsTotal.Set(float64(stats.AnalysisResults))
	CacheEntries.WithLabelValues("pool_metadata").Set(float64(stats.PoolMetadata))
	CacheEntries.WithLabelValues("pool_descriptors").Set(float64(stats.PoolDescriptors))
	CacheEntries.WithLabelValues("vault_descriptors").Set(float64(stats.VaultDescriptors))
	DiskCacheSizeBytes.Set(float64(stats.ImageCacheBytes))
	AnalysisPending.Set(float64(stats.AnalysisPending))

	logging.Debug("Metrics collected: assets=%d, pool=%d, vault=%d, image cache=%d bytes, pending analysis=%d",
		stats.Assets, stats.PoolMetadata, stats.VaultDescriptors, stats.ImageCacheBytes, stats.AnalysisPending)
}
