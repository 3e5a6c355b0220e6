package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Header is the fixed-size record at offset 0 of every container file.
// The three table Len fields hold ENTRY COUNTS, not byte lengths; only
// MetaLen is a byte length. All fields are fixed width; the encoded form
// is exactly HeaderSize bytes.
type Header struct {
	Magic      uint32
	Version    uint32
	Reserved   uint64 // zero on write, ignored on read
	InodeOff   uint64
	InodeLen   uint64 // inode table entry count
	StringOff  uint64
	StringLen  uint64 // string table entry count
	HistoryOff uint64
	HistoryLen uint64 // history table entry count
	MetaOff    uint64
	MetaLen    uint64 // meta blob byte length
}

// ParseHeader decodes and validates the container header. The magic number
// is checked before anything else; on mismatch no further parsing is
// attempted. Unknown format versions are rejected outright rather than
// parsed best-effort. Table offsets are NOT bounds-checked here: that
// validation is deferred to whichever component first dereferences the
// offset.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	d := NewDecoder(b, 0)
	magic, err := d.U32()
	if err != nil {
		return h, fmt.Errorf("magic: %w", err)
	}
	if magic != Magic {
		return h, fmt.Errorf("%w: got 0x%08x, want 0x%08x at offset 0x0", ErrInvalidMagic, magic, Magic)
	}
	if len(b) < HeaderSize {
		return h, fmt.Errorf("%w: header needs %d bytes, have %d at offset 0x0", ErrTruncatedRecord, HeaderSize, len(b))
	}
	h.Magic = magic
	if h.Version, err = d.U32(); err != nil {
		return Header{}, err
	}
	for _, field := range []*uint64{
		&h.Reserved,
		&h.InodeOff, &h.InodeLen,
		&h.StringOff, &h.StringLen,
		&h.HistoryOff, &h.HistoryLen,
		&h.MetaOff, &h.MetaLen,
	} {
		if *field, err = d.U64(); err != nil {
			return Header{}, err
		}
	}
	if !SupportedVersion(h.Version) {
		return Header{}, fmt.Errorf("%w: version %d at offset 0x4", ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}

// Encode serializes the header into exactly HeaderSize bytes. The Reserved
// field is forced to zero on the way out.
func (h Header) Encode() ([]byte, error) {
	h.Reserved = 0
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("failed to serialize header: %w", err)
	}
	return buf.Bytes(), nil
}
