package monitoring

import (
	"math"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeSummary MetricType = "summary"
)

// 业务指标名称
const (
	MetricPredictions     = "crop_predictions_total"
	MetricAdvisories      = "advisory_requests_total"
	MetricRequestDuration = "http_request_duration_seconds"
	MetricModelReloads    = "model_reloads_total"
)

// Metric 指标快照，用于 JSON 接口
type Metric struct {
	Name      string             `json:"name"`
	Type      MetricType         `json:"type"`
	Labels    map[string]string  `json:"labels,omitempty"`
	Value     float64            `json:"value"`
	Count     uint64             `json:"count,omitempty"`
	Quantiles map[string]float64 `json:"quantiles,omitempty"`
	Help      string             `json:"help,omitempty"`
}

// MetricsCollector 指标收集器。指标注册在私有 registry 上，只导出本服务的序列。
type MetricsCollector struct {
	registry  *prometheus.Registry
	counters  map[string]*prometheus.CounterVec
	summaries map[string]*prometheus.SummaryVec

	startTime time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry:  prometheus.NewRegistry(),
		counters:  make(map[string]*prometheus.CounterVec),
		summaries: make(map[string]*prometheus.SummaryVec),
		startTime: time.Now(),
	}

	mc.addCounter(MetricPredictions, "Crop predictions by outcome.", "outcome")
	mc.addCounter(MetricAdvisories, "Advisory relay requests by outcome.", "outcome")
	mc.addCounter(MetricModelReloads, "Successful model bundle hot swaps.")

	duration := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name:       MetricRequestDuration,
		Help:       "HTTP request latency by method and route.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"method", "route"})
	mc.registry.MustRegister(duration)
	mc.summaries[MetricRequestDuration] = duration

	return mc
}

func (mc *MetricsCollector) addCounter(name, help string, labels ...string) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	mc.registry.MustRegister(vec)
	mc.counters[name] = vec
}

// IncrCounter 增加计数器，未注册的名称或标签不匹配时忽略
func (mc *MetricsCollector) IncrCounter(name string, labels map[string]string) {
	vec, ok := mc.counters[name]
	if !ok {
		return
	}
	c, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}
	c.Inc()
}

// Observe 记录一次观测值（如请求耗时）
func (mc *MetricsCollector) Observe(name string, value float64, labels map[string]string) {
	vec, ok := mc.summaries[name]
	if !ok {
		return
	}
	o, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}
	o.Observe(value)
}

// Handler 以 Prometheus 文本格式导出
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

// Snapshot 返回所有已产生的序列，按名称和标签排序
func (mc *MetricsCollector) Snapshot() []Metric {
	families, err := mc.registry.Gather()
	if err != nil {
		return nil
	}

	var result []Metric
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			result = append(result, convertMetric(mf, m))
		}
	}
	return result
}

// Counter 返回计数器当前值，不存在时为 0
func (mc *MetricsCollector) Counter(name string, labels map[string]string) float64 {
	for _, m := range mc.Snapshot() {
		if m.Name == name && m.Type == MetricTypeCounter && sameLabels(m.Labels, labels) {
			return m.Value
		}
	}
	return 0
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// GetSystemStats 获取系统统计
func (mc *MetricsCollector) GetSystemStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"uptime":     mc.GetUptime().String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc":      m.Alloc,
			"sys":        m.Sys,
			"heap_alloc": m.HeapAlloc,
			"gc_count":   m.NumGC,
		},
		"num_cpu": runtime.NumCPU(),
	}
}

func convertMetric(mf *dto.MetricFamily, m *dto.Metric) Metric {
	out := Metric{Name: mf.GetName(), Help: mf.GetHelp()}
	if pairs := m.GetLabel(); len(pairs) > 0 {
		out.Labels = make(map[string]string, len(pairs))
		for _, p := range pairs {
			out.Labels[p.GetName()] = p.GetValue()
		}
	}

	switch mf.GetType() {
	case dto.MetricType_SUMMARY:
		s := m.GetSummary()
		out.Type = MetricTypeSummary
		out.Value = s.GetSampleSum()
		out.Count = s.GetSampleCount()
		for _, q := range s.GetQuantile() {
			// quantiles are NaN once the observation window is empty
			if math.IsNaN(q.GetValue()) {
				continue
			}
			if out.Quantiles == nil {
				out.Quantiles = make(map[string]float64)
			}
			out.Quantiles[strconv.FormatFloat(q.GetQuantile(), 'f', -1, 64)] = q.GetValue()
		}
	default:
		out.Type = MetricTypeCounter
		out.Value = m.GetCounter().GetValue()
	}
	return out
}

func sameLabels(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
