package format

import (
	"encoding/binary"
	"fmt"
)

// Decoder is a little-endian cursor over a byte slice. It tracks the
// absolute file offset of the next unread byte so every decode failure can
// report where in the file it happened, which the higher-level codecs rely
// on for their error messages.
//
// A Decoder never copies the bytes it returns; callers that retain decoded
// byte slices beyond the parse session must copy them.
type Decoder struct {
	buf  []byte
	pos  int
	base uint64 // absolute file offset of buf[0]
}

// NewDecoder returns a Decoder over buf, where base is the absolute file
// offset buf was read from.
func NewDecoder(buf []byte, base uint64) *Decoder {
	return &Decoder{buf: buf, base: base}
}

// Offset returns the absolute file offset of the next unread byte.
func (d *Decoder) Offset() uint64 {
	return d.base + uint64(d.pos)
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

func (d *Decoder) need(n int) error {
	if d.Remaining() < n {
		return fmt.Errorf("%w: need %d bytes, have %d at offset 0x%x", ErrTruncatedRecord, n, d.Remaining(), d.Offset())
	}
	return nil
}

// U8 decodes one byte.
func (d *Decoder) U8() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

// U16 decodes a little-endian uint16.
func (d *Decoder) U16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

// U32 decodes a little-endian uint32.
func (d *Decoder) U32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

// U64 decodes a little-endian uint64.
func (d *Decoder) U64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

// Bytes consumes and returns the next n bytes without copying.
func (d *Decoder) Bytes(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	v := d.buf[d.pos : d.pos+n]
	d.pos += n
	return v, nil
}

// Skip consumes n bytes, used for alignment padding. Pad contents are not
// inspected.
func (d *Decoder) Skip(n int) error {
	if err := d.need(n); err != nil {
		return err
	}
	d.pos += n
	return nil
}

// listCap bounds a list pre-allocation by how many entries of at least
// minEntrySize bytes the remaining input could still hold. A corrupt count
// then fails on truncation instead of sizing an enormous slice up front.
func listCap(count uint64, minEntrySize, remaining int) int {
	most := remaining / minEntrySize
	if count < uint64(most) {
		return int(count)
	}
	return most
}
