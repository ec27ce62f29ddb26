package build

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Page outcome labels.
const (
	resultComposed   = "composed"
	resultStandalone = "standalone"
	resultFailed     = "failed"
)

// BuildMetrics tracks build performance
type BuildMetrics struct {
	TotalBuilds       int64
	SuccessfulBuilds  int64
	FailedBuilds      int64
	ShortCircuited    int64
	IncrementalBuilds int64
	PagesBuilt        int64
	AssetsCopied      int64
	AverageDuration   time.Duration
	TotalDuration     time.Duration
	LastBuild         time.Time
	mutex             sync.RWMutex
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{}
}

// RecordBuild records a finished full build.
func (bm *BuildMetrics) RecordBuild(result *BuildResult) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalBuilds++
	bm.TotalDuration += result.Duration
	bm.PagesBuilt += int64(result.Pages)
	bm.AssetsCopied += int64(result.Assets)
	bm.LastBuild = time.Now()

	if result.ShortCircuited {
		bm.ShortCircuited++
	}
	if result.Failed > 0 {
		bm.FailedBuilds++
	} else {
		bm.SuccessfulBuilds++
	}

	if bm.TotalBuilds > 0 {
		bm.AverageDuration = bm.TotalDuration / time.Duration(bm.TotalBuilds)
	}
}

// RecordIncremental records one incremental rebuild.
func (bm *BuildMetrics) RecordIncremental(result *IncrementalResult) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.IncrementalBuilds++
	bm.PagesBuilt += int64(result.RebuiltFiles)
	bm.AssetsCopied += int64(result.CopiedAssets)
	bm.LastBuild = time.Now()
}

// GetSnapshot returns a snapshot of current metrics
func (bm *BuildMetrics) GetSnapshot() BuildMetrics {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()
	return BuildMetrics{
		TotalBuilds:       bm.TotalBuilds,
		SuccessfulBuilds:  bm.SuccessfulBuilds,
		FailedBuilds:      bm.FailedBuilds,
		ShortCircuited:    bm.ShortCircuited,
		IncrementalBuilds: bm.IncrementalBuilds,
		PagesBuilt:        bm.PagesBuilt,
		AssetsCopied:      bm.AssetsCopied,
		AverageDuration:   bm.AverageDuration,
		TotalDuration:     bm.TotalDuration,
		LastBuild:         bm.LastBuild,
	}
}

// Reset resets all metrics
func (bm *BuildMetrics) Reset() {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalBuilds = 0
	bm.SuccessfulBuilds = 0
	bm.FailedBuilds = 0
	bm.ShortCircuited = 0
	bm.IncrementalBuilds = 0
	bm.PagesBuilt = 0
	bm.AssetsCopied = 0
	bm.AverageDuration = 0
	bm.TotalDuration = 0
	bm.LastBuild = time.Time{}
}

// GetSuccessRate returns the success rate as a percentage
func (bm *BuildMetrics) GetSuccessRate() float64 {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	if bm.TotalBuilds == 0 {
		return 0.0
	}

	return float64(bm.SuccessfulBuilds) / float64(bm.TotalBuilds) * 100.0
}

// promMetrics are the Prometheus collectors of one Builder.
type promMetrics struct {
	pages        *prometheus.CounterVec
	assets       prometheus.Counter
	incremental  *prometheus.CounterVec
	hashChecks   *prometheus.CounterVec
	buildSeconds *prometheus.HistogramVec
}

func newPromMetrics(reg prometheus.Registerer, layoutCacheSize func() float64) *promMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "unify",
		Name:      "layout_cache_entries",
		Help:      "Layouts and components held in the composition cache",
	}, layoutCacheSize)

	return &promMetrics{
		pages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unify",
			Name:      "pages_total",
			Help:      "Pages built, by result",
		}, []string{"result"}),
		assets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "unify",
			Name:      "assets_copied_total",
			Help:      "Assets copied to the output directory",
		}),
		incremental: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unify",
			Name:      "incremental_rebuilds_total",
			Help:      "Incremental rebuilds, by role of the changed file",
		}, []string{"role"}),
		hashChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unify",
			Name:      "hash_checks_total",
			Help:      "Build cache lookups, by outcome",
		}, []string{"outcome"}),
		buildSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "unify",
			Name:      "build_duration_seconds",
			Help:      "Duration of builds in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}
