package format

import "errors"

// --- Error Definitions ---

// Sentinel error kinds for the container format. Decode paths wrap these
// with fmt.Errorf("%w: ...") adding the absolute file offset at which the
// problem was detected, so callers can match with errors.Is and still see
// where parsing stopped.
var (
	ErrInvalidMagic            = errors.New("invalid magic number")
	ErrUnsupportedVersion      = errors.New("unsupported format version")
	ErrOffsetOutOfRange        = errors.New("table offset out of file range")
	ErrTruncatedRecord         = errors.New("truncated record")
	ErrStringIndexOutOfRange   = errors.New("string index out of range")
	ErrStringTooLong           = errors.New("string exceeds maximum encodable length")
	ErrChunkOutOfRange         = errors.New("chunk exceeds file range")
	ErrChunkSizeMismatch       = errors.New("chunk list length does not match data length")
	ErrJournalSequenceConflict = errors.New("duplicate journal sequence key")
)
