// Package chunkio composes page byte streams from chunk lists. Gather
// reads a descriptor's chunks in list order and concatenates them into
// the page's logical stream; scatter splits a logical stream back across
// a target chunk list as an explicit write plan. Both directions check
// their bounds up front so a bad chunk list fails before any byte moves.
package chunkio

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"github.com/ftdb-labs/ftdb/core/format"
	"github.com/ftdb-labs/ftdb/pkg/bufpool"
)

// PieceSize is the largest single read issued against the byte source.
// Chunks bigger than this are read in pieces so a rate limiter can meter
// progress; limiters passed to Gather must allow bursts of at least this
// many bytes.
const PieceSize = 1 << 20

// GatherInto streams the logical byte stream described by chunks into w,
// reading from src in LIST order. size is the total size of the byte
// source; every chunk is validated against it before the first read, and
// any chunk reaching past it fails with ErrChunkOutOfRange.
//
// lim, when non-nil, throttles read throughput; it is intended for
// background passes like integrity scans. ctx cancels between pieces.
func GatherInto(ctx context.Context, w io.Writer, src io.ReaderAt, size int64, chunks []format.Chunk, lim *rate.Limiter) (int64, error) {
	if err := CheckBounds(chunks, size); err != nil {
		return 0, err
	}

	buf := bufpool.Default.Get(PieceSize)
	defer buf.Close()
	piece := buf.Bytes()[:PieceSize]

	var written int64
	for _, c := range chunks {
		off := int64(c.Offset)
		left := c.Length
		for left > 0 {
			n := PieceSize
			if left < uint64(n) {
				n = int(left)
			}
			if lim != nil {
				if err := lim.WaitN(ctx, n); err != nil {
					return written, fmt.Errorf("rate limiter: %w", err)
				}
			} else if err := ctx.Err(); err != nil {
				return written, err
			}
			if _, err := src.ReadAt(piece[:n], off); err != nil {
				return written, fmt.Errorf("read chunk piece at offset 0x%x: %w", off, err)
			}
			m, err := w.Write(piece[:n])
			written += int64(m)
			if err != nil {
				return written, fmt.Errorf("write gathered bytes: %w", err)
			}
			off += int64(n)
			left -= uint64(n)
		}
	}
	return written, nil
}

// Gather is GatherInto collecting the stream into memory.
func Gather(ctx context.Context, src io.ReaderAt, size int64, chunks []format.Chunk, lim *rate.Limiter) ([]byte, error) {
	if err := CheckBounds(chunks, size); err != nil {
		return nil, err
	}
	// Capacity hint only: the decoded sum is not trusted to size an
	// allocation, and overlapping chunks grow the buffer past it anyway.
	hint := format.ChunksTotalLength(chunks)
	if hint > uint64(size) {
		hint = uint64(size)
	}
	out := bytes.NewBuffer(make([]byte, 0, hint))
	if _, err := GatherInto(ctx, out, src, size, chunks, lim); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// CheckBounds verifies every chunk lies inside a byte source of the given
// size, including overflow of offset+length.
func CheckBounds(chunks []format.Chunk, size int64) error {
	for i, c := range chunks {
		end := c.Offset + c.Length
		if end < c.Offset || size < 0 || end > uint64(size) {
			return fmt.Errorf("%w: chunk %d spans [0x%x, 0x%x), file size 0x%x",
				format.ErrChunkOutOfRange, i, c.Offset, end, size)
		}
	}
	return nil
}

// Segment is one contiguous write of a scatter plan.
type Segment struct {
	Offset uint64
	Data   []byte
}

// WritePlan is the ordered list of writes that lays a logical byte stream
// out across a chunk list. Segment data aliases the input stream; the
// plan must be applied before the stream is reused.
type WritePlan struct {
	Segments []Segment
}

// Scatter splits data across the target chunks, in list order. The chunk
// list is not resized to fit: when the summed chunk lengths differ from
// len(data) the whole plan fails with ErrChunkSizeMismatch and nothing is
// produced.
func Scatter(data []byte, chunks []format.Chunk) (WritePlan, error) {
	total := format.ChunksTotalLength(chunks)
	if total != uint64(len(data)) {
		return WritePlan{}, fmt.Errorf("%w: chunks hold %d bytes, data is %d bytes", format.ErrChunkSizeMismatch, total, len(data))
	}
	plan := WritePlan{Segments: make([]Segment, 0, len(chunks))}
	var pos uint64
	for _, c := range chunks {
		plan.Segments = append(plan.Segments, Segment{
			Offset: c.Offset,
			Data:   data[pos : pos+c.Length],
		})
		pos += c.Length
	}
	return plan, nil
}

// TotalLength returns the number of bytes the plan writes.
func (p WritePlan) TotalLength() uint64 {
	var total uint64
	for _, s := range p.Segments {
		total += uint64(len(s.Data))
	}
	return total
}

// Apply performs the plan's writes against w in segment order.
func (p WritePlan) Apply(w io.WriterAt) (int64, error) {
	var written int64
	for i, s := range p.Segments {
		n, err := w.WriteAt(s.Data, int64(s.Offset))
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("apply segment %d at offset 0x%x: %w", i, s.Offset, err)
		}
	}
	return written, nil
}
