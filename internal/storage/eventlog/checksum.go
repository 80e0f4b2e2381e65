package eventlog

// ============================================================================
// 校驗和計算
// 職責：計算與驗證事件紀錄的 CRC32 校驗和
// ============================================================================

import (
	"hash/crc32"
	"strconv"
)

// Checksum 計算紀錄的 CRC32 校驗和
//
// 涵蓋欄位：Seq、Tick、Name、Source、ID、Data
// 欄位之間以 0 位元組分隔，避免串接後產生歧義
func Checksum(rec Record) uint32 {
	h := crc32.NewIEEE()
	sep := []byte{0}

	h.Write(strconv.AppendUint(nil, rec.Seq, 10))
	h.Write(sep)
	h.Write(strconv.AppendInt(nil, rec.Tick, 10))
	h.Write(sep)
	h.Write([]byte(rec.Name))
	h.Write(sep)
	h.Write([]byte(rec.Source))
	h.Write(sep)
	h.Write([]byte(rec.ID))
	h.Write(sep)
	h.Write(rec.Data)

	return h.Sum32()
}

// Verify 驗證紀錄的校驗和
func Verify(rec Record) error {
	if expected := Checksum(rec); expected != rec.Checksum {
		return &ChecksumError{Seq: rec.Seq, Expected: expected, Actual: rec.Checksum}
	}
	return nil
}
