package eventlog

// ============================================================================
// 事件日誌核心實作
// 職責：
// 1. 作為 eventbus 的 Sink，將每個事件追加到 JSON Lines 檔案
// 2. 提供重放功能以檢視或重建一次模擬
// 3. 支援日誌旋轉（可選 gzip 壓縮）
// 4. 批次寫入，降低 fsync 次數
// ============================================================================

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ChuLiYu/drf-sim/pkg/types"
)

var log = slog.Default()

// FileInterface 定義檔案操作所需的方法
// 這允許在測試中對檔案操作進行模擬
type FileInterface interface {
	Write(p []byte) (n int, err error)
	Sync() error
	Close() error
}

// Log 表示一個事件日誌實例
type Log struct {
	mu      sync.Mutex
	file    FileInterface
	encoder *json.Encoder
	path    string
	seq     uint64
	opts    Options
	closed  bool

	buffer        []Record
	lastFlushTime time.Time
}

// ============================================================================
// 公開介面
// ============================================================================

/*
Open 建立或開啟一個事件日誌

行為：
- 如果檔案不存在，建立新檔案，seq 從 0 開始
- 如果檔案已存在，讀取最後一筆紀錄的 seq 並繼續
- 以追加模式（O_APPEND）開啟，確保寫入不覆蓋
*/
func Open(path string, opts Options) (*Log, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultOptions().FlushInterval
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	var seq uint64
	if stat, statErr := file.Stat(); statErr == nil && stat.Size() > 0 {
		last, err := LastRecord(path)
		if err != nil {
			file.Close()
			return nil, err
		}
		if last != nil {
			seq = last.Seq
		}
	}

	return &Log{
		file:          file,
		encoder:       json.NewEncoder(file),
		path:          path,
		seq:           seq,
		opts:          opts,
		buffer:        make([]Record, 0, opts.BufferSize),
		lastFlushTime: time.Now(),
	}, nil
}

// Path 回傳日誌檔案路徑
func (l *Log) Path() string {
	return l.path
}

// Handle 實作 eventbus.Sink：序列化事件並加入緩衝區
//
// 緩衝區滿或超過 FlushInterval 時自動 flush
func (l *Log) Handle(e types.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("eventlog: failed to encode %s data: %w", e.Name, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	l.seq++
	rec := Record{
		Seq:    l.seq,
		Tick:   e.Time,
		Name:   e.Name,
		Source: e.Source,
		ID:     e.ID,
		Data:   data,
	}
	rec.Checksum = Checksum(rec)
	l.buffer = append(l.buffer, rec)

	if len(l.buffer) >= l.opts.BufferSize || time.Since(l.lastFlushTime) > l.opts.FlushInterval {
		return l.flushLocked()
	}
	return nil
}

// Flush 將緩衝的紀錄寫入檔案
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.flushLocked()
}

// Replay 依序重放檔案中的所有紀錄
//
// 行為：
// - 先 flush 緩衝區，確保看到所有已接收的事件
// - 驗證每筆紀錄的 checksum
// - 呼叫 handler，遇到錯誤立即停止
func (l *Log) Replay(handler RecordHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		if err := l.flushLocked(); err != nil {
			return err
		}
	}
	return ReplayFile(l.path, handler)
}

// Rotate 旋轉日誌檔案
//
// 舊檔案改名為 path.<timestamp>，若設定 CompressRotated 則壓縮為 .gz
// 回傳旋轉後的檔案路徑
func (l *Log) Rotate() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return "", ErrClosed
	}
	if err := l.flushLocked(); err != nil {
		return "", err
	}
	if err := l.file.Close(); err != nil {
		return "", err
	}

	backupPath := l.path + "." + time.Now().Format("20060102_150405.000000000")
	if err := os.Rename(l.path, backupPath); err != nil {
		return "", err
	}

	if l.opts.CompressRotated {
		gzPath := backupPath + ".gz"
		if err := compressFile(backupPath, gzPath); err != nil {
			log.Warn("failed to compress rotated event log", "path", backupPath, "error", err)
		} else if err := os.Remove(backupPath); err == nil {
			backupPath = gzPath
		}
	}

	newFile, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return "", err
	}

	l.file = newFile
	l.encoder = json.NewEncoder(newFile)
	l.seq = 0
	l.buffer = l.buffer[:0]
	l.lastFlushTime = time.Now()

	log.Info("event log rotated", "path", l.path, "rotated", backupPath)
	return backupPath, nil
}

// Close flush 後關閉檔案，之後的 Handle 回傳 ErrClosed
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if err := l.flushLocked(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// LastSeq 取得目前的紀錄序號
func (l *Log) LastSeq() uint64 {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// ============================================================================
// 內部輔助方法（私有）
// ============================================================================

// flushLocked 假設調用者已經持有 l.mu 鎖
func (l *Log) flushLocked() error {
	for _, rec := range l.buffer {
		if err := l.encoder.Encode(rec); err != nil {
			return err
		}
	}
	l.buffer = l.buffer[:0]
	l.lastFlushTime = time.Now()

	if l.opts.SyncOnFlush {
		if err := l.file.Sync(); err != nil {
			return err
		}
	}
	return nil
}

func compressFile(srcPath, dstPath string) error {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	gzipWriter := gzip.NewWriter(dstFile)
	if _, err := io.Copy(gzipWriter, srcFile); err != nil {
		gzipWriter.Close()
		return err
	}
	return gzipWriter.Close()
}

// openReader 開啟檔案，.gz 結尾時自動解壓縮
func openReader(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if len(path) < 3 || path[len(path)-3:] != ".gz" {
		return f, nil
	}

	gz, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &gzipReadCloser{Reader: gz, file: f}, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipReadCloser) Close() error {
	g.Reader.Close()
	return g.file.Close()
}
