// ============================================================================
// DRF Simulator Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 作為 eventbus 的 Sink，把模擬事件轉成 Prometheus 指標
//
// 指標分類:
//
//   1. 事件計數器 (Counter)：
//      - drfsim_events_total{name,source}: 各類事件數
//      - drfsim_offers_total{framework}: 送出的 offer 數
//      - drfsim_declines_total{framework}: 被拒絕的 offer 數
//      - drfsim_tasks_launched_total{framework}: 啟動的任務數
//      - drfsim_tasks_finished_total{framework}: 完成的任務數
//      - drfsim_launches_rejected_total{framework}: 超出 offer 的啟動請求
//      - drfsim_filters_installed_total{framework}: 安裝的過濾器數
//      - drfsim_ticks_total: 模擬 tick 數
//
//   2. 狀態指標 (Gauge)：
//      - drfsim_dominant_share{agent,framework}: 最近一次變動後的主導佔比
//      - drfsim_tasks_in_flight: 目前執行中的任務數
//
//   3. 性能指標 (Histogram)：
//      - drfsim_tick_duration_seconds: 每個 tick 的實際耗時
//
// Prometheus 查詢示例:
//
//   # 各框架的佔比差距
//   max(drfsim_dominant_share) by (agent) - min(drfsim_dominant_share) by (agent)
//
//   # 被拒絕 offer 的比例
//   sum(drfsim_declines_total) / sum(drfsim_offers_total)
//
// HTTP 端點:
//   通過 /metrics 端點暴露，默認端口: 9090
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChuLiYu/drf-sim/pkg/types"
)

const namespace = "drfsim"

// allocatorSource 只計算 allocator 發出的事件，agent 會重複送出 launch_task
const allocatorSource = "allocator"

// Collector Prometheus 指標收集器
type Collector struct {
	events       *prometheus.CounterVec
	offers       *prometheus.CounterVec
	declines     *prometheus.CounterVec
	launched     *prometheus.CounterVec
	finished     *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	filters      *prometheus.CounterVec
	ticks        prometheus.Counter
	share        *prometheus.GaugeVec
	inFlight     prometheus.Gauge
	tickDuration prometheus.Histogram
}

// NewCollector 創建指標收集器並註冊到 reg；reg 為 nil 時使用預設 registry
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	byFramework := []string{"framework"}
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of published events",
		}, []string{"name", "source"}),
		offers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offers_total",
			Help:      "Total number of resource offers sent to frameworks",
		}, byFramework),
		declines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "declines_total",
			Help:      "Total number of declined offers",
		}, byFramework),
		launched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_launched_total",
			Help:      "Total number of launched tasks",
		}, byFramework),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Total number of tasks that reached a terminal status",
		}, byFramework),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_rejected_total",
			Help:      "Total number of launch requests exceeding their offer",
		}, byFramework),
		filters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filters_installed_total",
			Help:      "Total number of offer filters installed on agents",
		}, byFramework),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of simulated ticks",
		}),
		share: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dominant_share",
			Help:      "Dominant share of a framework on an agent",
		}, []string{"agent", "framework"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Current number of running tasks",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock time spent per simulated tick",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}

	reg.MustRegister(
		c.events,
		c.offers,
		c.declines,
		c.launched,
		c.finished,
		c.rejected,
		c.filters,
		c.ticks,
		c.share,
		c.inFlight,
		c.tickDuration,
	)

	return c
}

// Handle 實作 eventbus.Sink
func (c *Collector) Handle(e types.Event) error {
	c.events.WithLabelValues(e.Name, e.Source).Inc()

	switch e.Name {
	case "tick":
		c.ticks.Inc()
	case "resource_offer":
		fw := field(e.Data, "framework_name")
		c.offers.WithLabelValues(fw).Inc()
		c.setShare(e.Data)
	case "recover_resources":
		c.setShare(e.Data)
	case "decline_offer":
		c.declines.WithLabelValues(field(e.Data, "framework_name")).Inc()
	case "launch_rejected":
		c.rejected.WithLabelValues(field(e.Data, "framework_name")).Inc()
	case "add_filter":
		c.filters.WithLabelValues(field(e.Data, "framework_name")).Inc()
	case "launch_task":
		if task, ok := e.Data.(types.Task); ok && e.Source == allocatorSource {
			c.launched.WithLabelValues(string(task.Framework)).Inc()
			c.inFlight.Inc()
		}
	case "status_update":
		if update, ok := e.Data.(types.StatusUpdate); ok && update.Status.IsTerminal() {
			c.finished.WithLabelValues(string(update.Framework)).Inc()
			c.inFlight.Dec()
		}
	}
	return nil
}

// ObserveTick 記錄一個 tick 的耗時
func (c *Collector) ObserveTick(d time.Duration) {
	c.tickDuration.Observe(d.Seconds())
}

// SetInFlight 以 allocator 的實際數量校正執行中任務數
func (c *Collector) SetInFlight(n int) {
	c.inFlight.Set(float64(n))
}

func (c *Collector) setShare(data any) {
	m, ok := data.(map[string]any)
	if !ok {
		return
	}
	share, ok := m["share"].(float64)
	if !ok {
		return
	}
	c.share.WithLabelValues(field(data, "agent_name"), field(data, "framework_name")).Set(share)
}

// field 從事件資料取出字串欄位
func field(data any, key string) string {
	m, ok := data.(map[string]any)
	if !ok {
		return ""
	}
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// NewServer 建立暴露 /metrics 的 HTTP 伺服器
//
// 參數：
//   - addr: 監聽位址，例如 ":9090"
//   - g:    指標來源；nil 時使用預設 registry
func NewServer(addr string, g prometheus.Gatherer) *http.Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
