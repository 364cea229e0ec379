package registry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 加载结果标签
const (
	outcomeOK       = "ok"
	outcomeFailed   = "failed"
	outcomeNoCenter = "no_center"
	outcomeCanceled = "canceled"
)

// Metrics Registry 的 Prometheus 指标, nil 时所有方法为空操作
type Metrics struct {
	pois      prometheus.Gauge
	nodes     prometheus.Gauge
	loads     *prometheus.CounterVec
	duration  prometheus.Histogram
	mutations *prometheus.CounterVec
}

// NewMetrics 创建指标并注册到 reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pois: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "navcog",
			Subsystem: "poi",
			Name:      "pois",
			Help:      "Number of POIs currently registered.",
		}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "navcog",
			Subsystem: "poi",
			Name:      "nodes",
			Help:      "Number of graph nodes derived from registered POIs.",
		}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "navcog",
			Subsystem: "poi",
			Name:      "loads_total",
			Help:      "Completed logical POI loads by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "navcog",
			Subsystem: "poi",
			Name:      "load_duration_seconds",
			Help:      "Time from load start to result notification.",
			Buckets:   prometheus.DefBuckets,
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "navcog",
			Subsystem: "poi",
			Name:      "mutations_total",
			Help:      "Incremental POI mutations by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.pois, m.nodes, m.loads, m.duration, m.mutations)
	return m
}

func (m *Metrics) setSize(pois, nodes int) {
	if m == nil {
		return
	}
	m.pois.Set(float64(pois))
	m.nodes.Set(float64(nodes))
}

func (m *Metrics) observeLoad(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(outcome).Inc()
	m.duration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) mutation(kind ChangeKind) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(string(kind)).Inc()
}
