package report

// ============================================================================
// 職責說明：
// 1. 將一次模擬的最終狀態序列化為 JSON 報告
// 2. 使用原子性寫入（temp file + rename）防止損壞
// 3. 載入時驗證 schema 版本相容性
// 4. 記錄事件日誌的最後序號，方便對照重放
// ============================================================================

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/drf-sim/internal/allocator"
	"github.com/ChuLiYu/drf-sim/internal/framework"
	"github.com/ChuLiYu/drf-sim/pkg/types"
)

// SchemaVersion 目前的報告格式版本
const SchemaVersion = 1

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrCorruptedReport     = errors.New("report file is corrupted")
	ErrIncompatibleVersion = errors.New("report schema version is incompatible")
	ErrReportNotFound      = errors.New("report file not found")
)

// ============================================================================
// 資料結構定義
// ============================================================================

// Report 一次模擬結束時的完整狀態
type Report struct {
	SchemaVer   int                     `json:"schema_version"`
	RunID       string                  `json:"run_id"`
	Scenario    string                  `json:"scenario"`
	GeneratedAt time.Time               `json:"generated_at"`
	Ticks       int64                   `json:"ticks"`
	Rounds      int64                   `json:"rounds"`
	InFlight    int                     `json:"in_flight"`
	LastSeq     uint64                  `json:"last_seq"`
	Agents      []allocator.AgentStatus `json:"agents"`
	Frameworks  []FrameworkSummary      `json:"frameworks"`
}

// FrameworkSummary 單一框架的計數與錯誤
type FrameworkSummary struct {
	Name   types.FrameworkID `json:"name"`
	Policy string            `json:"policy"`
	Stats  framework.Stats   `json:"stats"`
	Error  string            `json:"error,omitempty"`
}

// NewRunID 產生一次模擬的唯一識別碼
func NewRunID() string {
	return uuid.NewString()
}

// Framework 找出指定名稱的框架摘要
func (r *Report) Framework(name types.FrameworkID) (FrameworkSummary, bool) {
	for _, f := range r.Frameworks {
		if f.Name == name {
			return f, true
		}
	}
	return FrameworkSummary{}, false
}

// Agent 找出指定名稱的 agent 狀態
func (r *Report) Agent(name string) (allocator.AgentStatus, bool) {
	for _, a := range r.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return allocator.AgentStatus{}, false
}

// Share 回傳框架在某個 agent 上的主導佔比
func (r *Report) Share(agent string, fw types.FrameworkID) float64 {
	a, ok := r.Agent(agent)
	if !ok {
		return 0
	}
	for _, e := range a.Shares {
		if e.Framework == fw {
			return e.Share
		}
	}
	return 0
}

// ============================================================================
// Manager
// ============================================================================

// Manager 報告檔案管理器
type Manager struct {
	path string
	mu   sync.Mutex
}

// NewManager 建立報告管理器實例
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Write 原子性寫入報告
//
// 1. 寫入臨時檔案（.tmp）
// 2. 使用 os.Rename 原子性替換原始檔案
func (m *Manager) Write(r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.SchemaVer = SchemaVersion

	jsonBytes, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write temp report: %w", err)
	}

	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename report: %w", err)
	}

	return nil
}

// Load 載入報告
//
// 檔案不存在時回傳 ErrReportNotFound
func (m *Manager) Load() (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jsonBytes, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrReportNotFound, m.path)
		}
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(jsonBytes, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedReport, err)
	}

	if r.SchemaVer != SchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, r.SchemaVer, SchemaVersion)
	}

	return &r, nil
}

// Exists 檢查報告檔案是否存在
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// GetPath 取得報告檔案路徑
func (m *Manager) GetPath() string {
	return m.path
}
