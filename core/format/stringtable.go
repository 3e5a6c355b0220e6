package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// StringTable is the decoded, immutable name table of a container. Every
// name or principal elsewhere in the file is a 0-based index into it.
type StringTable struct {
	entries [][]byte
}

// DecodeStringTable decodes count length-prefixed strings from b, where
// base is the absolute file offset of b[0]. Each entry is a u16 LE length
// followed by that many raw bytes. b may extend past the table's end
// (table extents are delimited by entry count, not byte length); trailing
// bytes are left untouched. A malformed entry aborts the whole table.
func DecodeStringTable(b []byte, base uint64, count uint64) (*StringTable, error) {
	d := NewDecoder(b, base)
	entries := make([][]byte, 0, listCap(count, 2, d.Remaining()))
	for i := uint64(0); i < count; i++ {
		n, err := d.U16()
		if err != nil {
			return nil, fmt.Errorf("string table entry %d: %w", i, err)
		}
		raw, err := d.Bytes(int(n))
		if err != nil {
			return nil, fmt.Errorf("string table entry %d: %w", i, err)
		}
		entry := make([]byte, n)
		copy(entry, raw)
		entries = append(entries, entry)
	}
	return &StringTable{entries: entries}, nil
}

// Len returns the number of entries in the table.
func (st *StringTable) Len() uint64 {
	return uint64(len(st.entries))
}

// Resolve returns the raw bytes of entry idx.
func (st *StringTable) Resolve(idx uint64) ([]byte, error) {
	if idx >= uint64(len(st.entries)) {
		return nil, fmt.Errorf("%w: index %d, table has %d entries", ErrStringIndexOutOfRange, idx, len(st.entries))
	}
	return st.entries[idx], nil
}

// ResolveString is Resolve with a string result, for the common case of
// page names and principals.
func (st *StringTable) ResolveString(idx uint64) (string, error) {
	raw, err := st.Resolve(idx)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// --- Writer Side ---

// StringInterner accumulates the string table for one build cycle.
// Identical byte strings map to the same index. An interner is owned by
// exactly one Builder and must not be shared across build cycles.
type StringInterner struct {
	index   map[string]uint64
	entries []string
}

// NewStringInterner returns an empty interner.
func NewStringInterner() *StringInterner {
	return &StringInterner{index: make(map[string]uint64)}
}

// Intern returns the table index for s, appending it on first sight.
func (si *StringInterner) Intern(s string) uint64 {
	if idx, ok := si.index[s]; ok {
		return idx
	}
	idx := uint64(len(si.entries))
	si.index[s] = idx
	si.entries = append(si.entries, s)
	return idx
}

// Len returns the number of interned strings.
func (si *StringInterner) Len() uint64 {
	return uint64(len(si.entries))
}

// Encode serializes the table in index order. A string longer than the
// u16 length prefix can carry fails the whole encode; nothing is emitted
// for a table containing such an entry.
func (si *StringInterner) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	for i, s := range si.entries {
		if len(s) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: entry %d is %d bytes", ErrStringTooLong, i, len(s))
		}
		if err := binary.Write(buf, binary.LittleEndian, uint16(len(s))); err != nil {
			return nil, fmt.Errorf("failed to serialize string length: %w", err)
		}
		if _, err := buf.WriteString(s); err != nil {
			return nil, fmt.Errorf("failed to write string bytes: %w", err)
		}
	}
	return buf.Bytes(), nil
}
