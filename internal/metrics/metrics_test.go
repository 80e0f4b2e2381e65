package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/drf-sim/internal/eventbus"
	"github.com/ChuLiYu/drf-sim/pkg/types"
)

func newCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector(reg), reg
}

func allocatorEvent(name string, data any) types.Event {
	return types.Event{Name: name, Data: data, Source: "allocator", ID: "drf_allocator"}
}

func TestNewCollector(t *testing.T) {
	collector, reg := newCollector(t)

	assert.NotNil(t, collector.events)
	assert.NotNil(t, collector.share)
	assert.NotNil(t, collector.tickDuration)

	// 同一個 registry 不能註冊兩次
	assert.Panics(t, func() { NewCollector(reg) })
}

func TestOfferAndShare(t *testing.T) {
	c, _ := newCollector(t)

	require.NoError(t, c.Handle(allocatorEvent("resource_offer", map[string]any{
		"agent_name":     "default",
		"framework_name": types.FrameworkID("A"),
		"share":          1.0,
	})))
	require.NoError(t, c.Handle(allocatorEvent("recover_resources", map[string]any{
		"agent_name":     "default",
		"framework_name": types.FrameworkID("A"),
		"share":          1.0 / 3,
	})))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.offers.WithLabelValues("A")))
	assert.InDelta(t, 1.0/3, testutil.ToFloat64(c.share.WithLabelValues("default", "A")), 1e-12)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("resource_offer", "allocator")))
}

func TestDeclineRejectAndFilter(t *testing.T) {
	c, _ := newCollector(t)

	require.NoError(t, c.Handle(allocatorEvent("decline_offer", map[string]any{"framework_name": "B"})))
	require.NoError(t, c.Handle(allocatorEvent("decline_offer", map[string]any{"framework_name": "B"})))
	require.NoError(t, c.Handle(allocatorEvent("launch_rejected", map[string]any{"framework_name": "B"})))
	require.NoError(t, c.Handle(types.Event{
		Name:   "add_filter",
		Data:   map[string]any{"framework_name": "B", "duration": 5},
		Source: "agent",
		ID:     "default",
	}))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.declines.WithLabelValues("B")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejected.WithLabelValues("B")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.filters.WithLabelValues("B")))
}

func TestLaunchAndFinish(t *testing.T) {
	c, _ := newCollector(t)
	task := types.Task{Framework: "A", ID: "1", Duration: types.Ticks(3)}

	// agent 發出的 launch_task 不重複計算
	require.NoError(t, c.Handle(allocatorEvent("launch_task", task)))
	require.NoError(t, c.Handle(types.Event{Name: "launch_task", Data: task, Source: "agent", ID: "default"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.launched.WithLabelValues("A")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inFlight))

	require.NoError(t, c.Handle(allocatorEvent("status_update", types.StatusUpdate{
		Agent: "default", Framework: "A", Task: "1", Status: types.StatusFinished,
	})))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.finished.WithLabelValues("A")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight))

	c.SetInFlight(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(c.inFlight))
}

func TestTicks(t *testing.T) {
	c, _ := newCollector(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Handle(types.Event{Name: "tick", Source: "simulator", ID: "drf_simulator"}))
		c.ObserveTick(time.Millisecond)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(c.ticks))
	assert.Equal(t, 1, testutil.CollectAndCount(c.tickDuration))
}

func TestUnknownDataIgnored(t *testing.T) {
	c, _ := newCollector(t)

	assert.NotPanics(t, func() {
		require.NoError(t, c.Handle(allocatorEvent("resource_offer", "not a map")))
		require.NoError(t, c.Handle(allocatorEvent("recover_resources", map[string]any{"share": "x"})))
		require.NoError(t, c.Handle(allocatorEvent("launch_task", nil)))
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.offers.WithLabelValues("")))
}

func TestCollectorAsBusSink(t *testing.T) {
	c, _ := newCollector(t)
	bus := eventbus.NewBus(func() int64 { return 7 }, c)

	require.NoError(t, bus.Publish(testSource{}, "tick", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ticks))
}

func TestServerExposesMetrics(t *testing.T) {
	c, reg := newCollector(t)
	require.NoError(t, c.Handle(allocatorEvent("decline_offer", map[string]any{"framework_name": "C"})))

	srv := NewServer(":0", reg)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(string(body), `drfsim_declines_total{framework="C"} 1`))
}

type testSource struct{}

func (testSource) SourceName() string { return "simulator" }
func (testSource) SourceID() string   { return "drf_simulator" }
