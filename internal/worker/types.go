package worker

import (
	"time"

	"github.com/ChuLiYu/drf-sim/internal/config"
	"github.com/ChuLiYu/drf-sim/internal/report"
)

// Task 代表一次要執行的模擬
type Task struct {
	ID       string           // 任務識別碼，通常是情境名稱加參數
	Scenario *config.Scenario // 要執行的情境
	Timeout  time.Duration    // 執行超時時間；0 表示不限
}

// Result 代表模擬結果
type Result struct {
	TaskID   string         // 任務 ID
	Report   *report.Report // 最終報告；失敗時為 nil
	Error    error          // 錯誤訊息（如果有）
	Duration time.Duration  // 實際執行時間
}

// Success 回報是否成功
func (r Result) Success() bool {
	return r.Error == nil
}
