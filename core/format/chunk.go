package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Chunk identifies one contiguous byte range of the file holding part of a
// page's data. A descriptor owns an ordered chunk list; concatenating the
// ranges in LIST order, not offset order, yields the page's logical byte
// stream.
type Chunk struct {
	Offset uint64
	Length uint64
}

// End returns the first byte offset past the chunk.
func (c Chunk) End() uint64 { return c.Offset + c.Length }

// ChunksTotalLength sums the lengths of a chunk list, which is the size of
// the logical stream the list reassembles into. Lengths are decoded values
// with no magnitude guarantee, so the sum saturates at math.MaxUint64
// instead of wrapping.
func ChunksTotalLength(chunks []Chunk) uint64 {
	var total uint64
	for _, c := range chunks {
		if c.Length > math.MaxUint64-total {
			return math.MaxUint64
		}
		total += c.Length
	}
	return total
}

// DecodeChunk decodes a single 16-byte (offset, length) pair from d.
func DecodeChunk(d *Decoder) (Chunk, error) {
	var c Chunk
	var err error
	if c.Offset, err = d.U64(); err != nil {
		return c, fmt.Errorf("chunk offset: %w", err)
	}
	if c.Length, err = d.U64(); err != nil {
		return c, fmt.Errorf("chunk length: %w", err)
	}
	return c, nil
}

// EncodeTo appends the pair's 16-byte encoding to buf, offset first.
func (c Chunk) EncodeTo(buf *bytes.Buffer) error {
	if err := binary.Write(buf, binary.LittleEndian, c.Offset); err != nil {
		return fmt.Errorf("failed to serialize chunk offset: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, c.Length); err != nil {
		return fmt.Errorf("failed to serialize chunk length: %w", err)
	}
	return nil
}

// DecodeChunkList decodes count consecutive pairs from d. Chunk-count
// prefixed sections in inode records and journal entries share this scan.
func DecodeChunkList(d *Decoder, count uint64) ([]Chunk, error) {
	chunks := make([]Chunk, 0, listCap(count, chunkPairSize, d.Remaining()))
	for i := uint64(0); i < count; i++ {
		c, err := DecodeChunk(d)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}
