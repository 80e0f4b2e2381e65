package eventlog

// ============================================================================
// 事件日誌工具函式
// 職責：不需要開啟 Log 實例即可讀取、驗證與輸出檔案
// ============================================================================

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

const maxLineSize = 4 * 1024 * 1024

// ReplayFile 逐行讀取檔案並驗證校驗和
func ReplayFile(path string, handler RecordHandler) error {
	r, err := openReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return &CorruptionError{Line: line, Cause: err}
		}
		if err := Verify(rec); err != nil {
			return err
		}
		if err := handler(rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ReadAll 回傳檔案中的所有紀錄
func ReadAll(path string) ([]Record, error) {
	var records []Record
	err := ReplayFile(path, func(rec Record) error {
		records = append(records, rec)
		return nil
	})
	return records, err
}

// LastRecord 從檔案讀取最後一筆紀錄
//
// 空檔案回傳 nil, nil
func LastRecord(path string) (*Record, error) {
	var last *Record
	err := ReplayFile(path, func(rec Record) error {
		r := rec
		last = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

// Validate 驗證格式、校驗和與 seq 連續性
func Validate(path string) error {
	var lastSeq uint64
	return ReplayFile(path, func(rec Record) error {
		if lastSeq != 0 && rec.Seq != lastSeq+1 {
			return fmt.Errorf("%w: seq %d follows %d", ErrSequenceGap, rec.Seq, lastSeq)
		}
		lastSeq = rec.Seq
		return nil
	})
}

// Dump 以人類可讀格式輸出紀錄
//
//	[seq:1 tick:0] add_agent agent/default {"capacity":[9,18]}
func Dump(path string, w io.Writer, names ...string) error {
	filter := make(map[string]bool, len(names))
	for _, n := range names {
		filter[n] = true
	}

	return ReplayFile(path, func(rec Record) error {
		if len(filter) > 0 && !filter[rec.Name] {
			return nil
		}
		_, err := fmt.Fprintf(w, "[seq:%d tick:%d] %s %s/%s %s\n", rec.Seq, rec.Tick, rec.Name, rec.Source, rec.ID, rec.Data)
		return err
	})
}

// GetStats 掃描檔案並彙整統計資訊
func GetStats(path string) (*Stats, error) {
	stats := &Stats{Names: make(map[string]int)}
	err := ReplayFile(path, func(rec Record) error {
		if stats.TotalRecords == 0 {
			stats.FirstSeq = rec.Seq
			stats.TickRange = [2]int64{rec.Tick, rec.Tick}
		}
		stats.TotalRecords++
		stats.Names[rec.Name]++
		stats.LastSeq = rec.Seq
		if rec.Tick < stats.TickRange[0] {
			stats.TickRange[0] = rec.Tick
		}
		if rec.Tick > stats.TickRange[1] {
			stats.TickRange[1] = rec.Tick
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Exists 檢查檔案是否存在
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
