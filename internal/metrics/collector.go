// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 记忆子系统指标收集器
type Collector struct {
	// 保存指标
	savesTotal   *prometheus.CounterVec
	saveFailures *prometheus.CounterVec
	saveDuration *prometheus.HistogramVec

	// 检索指标
	searchesTotal  *prometheus.CounterVec
	searchFailures *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	searchResults  *prometheus.HistogramVec

	// 嵌入指标
	embeddingRequests  *prometheus.CounterVec
	embeddingCacheHits prometheus.Counter
	embeddingCacheMiss prometheus.Counter
	embeddingDuration  *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 保存指标
	c.savesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_saves_total",
			Help:      "Total number of memory save operations",
		},
		[]string{"kind", "backend"},
	)

	c.saveFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_save_failures_total",
			Help:      "Total number of failed memory save operations",
		},
		[]string{"kind", "backend"},
	)

	c.saveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_save_duration_seconds",
			Help:      "Memory save duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind", "backend"},
	)

	// 检索指标
	c.searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_searches_total",
			Help:      "Total number of memory search operations",
		},
		[]string{"kind", "backend"},
	)

	c.searchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_search_failures_total",
			Help:      "Total number of failed memory search operations",
		},
		[]string{"kind", "backend"},
	)

	c.searchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_search_duration_seconds",
			Help:      "Memory search duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind", "backend"},
	)

	c.searchResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_search_results",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"kind"},
	)

	// 嵌入指标
	c.embeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	c.embeddingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_hits_total",
			Help:      "Total number of embedding cache hits",
		},
	)

	c.embeddingCacheMiss = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_misses_total",
			Help:      "Total number of embedding cache misses",
		},
	)

	c.embeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"model"},
	)

	return c
}

// =============================================================================
// 📝 记录方法
// =============================================================================

// RecordSave 记录一次保存操作
func (c *Collector) RecordSave(kind, backend string, duration time.Duration, err error) {
	c.savesTotal.WithLabelValues(kind, backend).Inc()
	c.saveDuration.WithLabelValues(kind, backend).Observe(duration.Seconds())
	if err != nil {
		c.saveFailures.WithLabelValues(kind, backend).Inc()
	}
}

// RecordSearch 记录一次检索操作
func (c *Collector) RecordSearch(kind, backend string, duration time.Duration, resultCount int, err error) {
	c.searchesTotal.WithLabelValues(kind, backend).Inc()
	c.searchDuration.WithLabelValues(kind, backend).Observe(duration.Seconds())
	if err != nil {
		c.searchFailures.WithLabelValues(kind, backend).Inc()
		return
	}
	c.searchResults.WithLabelValues(kind).Observe(float64(resultCount))
}

// RecordEmbedding 记录一次嵌入请求
func (c *Collector) RecordEmbedding(model string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.embeddingRequests.WithLabelValues(model, status).Inc()
	c.embeddingDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// IncEmbeddingCacheHit 缓存命中计数
func (c *Collector) IncEmbeddingCacheHit() {
	c.embeddingCacheHits.Inc()
}

// IncEmbeddingCacheMiss 缓存未命中计数
func (c *Collector) IncEmbeddingCacheMiss() {
	c.embeddingCacheMiss.Inc()
}
