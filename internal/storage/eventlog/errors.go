package eventlog

// ============================================================================
// Event Log Error Definitions
// ============================================================================

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrCorrupted indicates a line that cannot be parsed
	ErrCorrupted = errors.New("eventlog: file is corrupted")

	// ErrChecksumMismatch indicates a record whose checksum does not match
	ErrChecksumMismatch = errors.New("eventlog: checksum mismatch")

	// ErrClosed indicates the log has been closed
	ErrClosed = errors.New("eventlog: already closed")

	// ErrSequenceGap indicates non-contiguous sequence numbers
	ErrSequenceGap = errors.New("eventlog: sequence gap")
)

// ChecksumError carries details of a checksum failure
type ChecksumError struct {
	Seq      uint64
	Expected uint32
	Actual   uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("eventlog: checksum mismatch at seq=%d (expected=0x%08x, got=0x%08x)", e.Seq, e.Expected, e.Actual)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}

// CorruptionError carries the line on which parsing failed
type CorruptionError struct {
	Line  int
	Cause error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("eventlog: corrupted record at line %d: %v", e.Line, e.Cause)
}

func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorrupted
}

func (e *CorruptionError) Unwrap() error {
	return e.Cause
}
