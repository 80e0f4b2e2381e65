package eventlog

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Event Log Type Definitions
// Responsibility: Define the on-disk record format
// ============================================================================

// Record is one line of the event log
type Record struct {
	Seq      uint64          `json:"seq"`            // Monotonically increasing sequence number
	Tick     int64           `json:"tick"`           // Simulation time of the event
	Name     string          `json:"name"`           // Event name (add_agent, resource_offer, ...)
	Source   string          `json:"source"`         // Emitting component kind
	ID       string          `json:"id"`             // Emitting component instance
	Data     json.RawMessage `json:"data,omitempty"` // Event payload as published
	Checksum uint32          `json:"checksum"`       // CRC32 over the fields above
}

// RecordHandler processes records during Replay
// Returning an error aborts the replay
type RecordHandler func(rec Record) error

// Options configures buffering and durability
type Options struct {
	SyncOnFlush     bool          // fsync after each flush
	BufferSize      int           // Records buffered before a forced flush
	FlushInterval   time.Duration // Maximum time records stay buffered
	CompressRotated bool          // gzip rotated files
}

// DefaultOptions returns the defaults used by the simulator
func DefaultOptions() Options {
	return Options{
		SyncOnFlush:   false,
		BufferSize:    256,
		FlushInterval: time.Second,
	}
}

// Stats summarizes an event log file
type Stats struct {
	TotalRecords int            `json:"total_records"`
	Names        map[string]int `json:"names"`
	FirstSeq     uint64         `json:"first_seq"`
	LastSeq      uint64         `json:"last_seq"`
	TickRange    [2]int64       `json:"tick_range"`
}
