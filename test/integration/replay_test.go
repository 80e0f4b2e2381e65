package integration

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/drf-sim/internal/controller"
	"github.com/ChuLiYu/drf-sim/internal/resource"
	"github.com/ChuLiYu/drf-sim/internal/storage/eventlog"
	"github.com/ChuLiYu/drf-sim/pkg/types"
)

// allocation resource_offer / recover_resources 的共同欄位
type allocation struct {
	Agent     string            `json:"agent_name"`
	Framework types.FrameworkID `json:"framework_name"`
	Resources resource.Vector   `json:"resources"`
}

// TestReplayReconstructsUsage 只靠事件日誌重建每個框架的用量，並與報告比對
//
// 扣款發生在 offer 時，launch 後剩餘與 decline 的整份 offer 都以
// recover_resources 歸還，任務完成時也一樣。
func TestReplayReconstructsUsage(t *testing.T) {
	for _, name := range []string{"drf-share", "filter-starvation", "short-lived"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "events.jsonl")
			ctrl, r := runBuiltin(t, name, 0, controller.Options{
				EventLogPath:    path,
				EventLogOptions: eventlog.DefaultOptions(),
			})
			require.NoError(t, ctrl.Close())
			require.NoError(t, eventlog.Validate(path))

			usage := make(map[string]map[types.FrameworkID]resource.Vector)
			apply := func(rec eventlog.Record, sign float64) error {
				var a allocation
				if err := json.Unmarshal(rec.Data, &a); err != nil {
					return err
				}
				if usage[a.Agent] == nil {
					usage[a.Agent] = make(map[types.FrameworkID]resource.Vector)
				}
				cur, ok := usage[a.Agent][a.Framework]
				if !ok {
					cur = resource.Zero(a.Resources.Dimensions())
				}
				var err error
				if sign > 0 {
					cur, err = cur.Add(a.Resources)
				} else {
					cur, err = cur.Subtract(a.Resources)
				}
				usage[a.Agent][a.Framework] = cur
				return err
			}

			var lastSeq uint64
			err := eventlog.ReplayFile(path, func(rec eventlog.Record) error {
				lastSeq = rec.Seq
				if rec.Source != "allocator" {
					return nil
				}
				switch rec.Name {
				case "resource_offer":
					return apply(rec, 1)
				case "recover_resources":
					return apply(rec, -1)
				}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, r.LastSeq, lastSeq)

			for _, a := range r.Agents {
				for fw, want := range a.Usage {
					got, ok := usage[a.Name][fw]
					if !ok {
						got = resource.Zero(want.Dimensions())
					}
					assert.True(t, got.Equal(want), "%s/%s: replayed %v, report %v", a.Name, fw, got, want)
				}
			}
		})
	}
}

// TestEventOrderingWithinTick 每個 tick 以 tick 事件開頭，時間單調不減
func TestEventOrderingWithinTick(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	ctrl, _ := runBuiltin(t, "short-lived", 0, controller.Options{EventLogPath: path})
	require.NoError(t, ctrl.Close())

	records, err := eventlog.ReadAll(path)
	require.NoError(t, err)
	require.NotEmpty(t, records)

	var prev int64 = -1
	for _, rec := range records {
		require.GreaterOrEqual(t, rec.Tick, prev, "seq %d went back in time", rec.Seq)
		if rec.Tick > prev && rec.Tick > 0 {
			assert.Equal(t, "tick", rec.Name, "first event of tick %d", rec.Tick)
		}
		prev = rec.Tick
	}
}
