package chunkio

import (
	"fmt"
	"sort"

	"github.com/ftdb-labs/ftdb/core/format"
	commonutils "github.com/ftdb-labs/ftdb/internal/common_utils"
)

// extendAlign is the boundary new allocations land on when the file has
// to grow: a grown extent starts at EOF rounded up to the next 4 KiB
// page, and the new file size is wherever that extent ends.
const extendAlign = 0x1000

// FindFreeExtent locates a free contiguous region of exactly need bytes
// for new page data. taken is every extent currently in use (any order,
// overlaps tolerated), dataStart the first offset eligible for page data,
// and fileSize the current end of the file.
//
// The scan is first-fit over the gaps between taken extents within
// [dataStart, fileSize), including the tail gap before EOF. When no gap
// is big enough the file grows: the returned chunk starts at EOF rounded
// up to extendAlign and the second return value is the new file size.
// Otherwise the file size comes back unchanged.
func FindFreeExtent(taken []format.Chunk, dataStart, fileSize, need uint64) (format.Chunk, uint64, error) {
	if need == 0 {
		return format.Chunk{}, fileSize, fmt.Errorf("zero-length allocation")
	}

	extents := commonutils.CloneSlice(taken)
	sort.Slice(extents, func(i, j int) bool { return extents[i].Offset < extents[j].Offset })

	cursor := dataStart
	for _, c := range extents {
		if c.Length == 0 || c.End() <= cursor {
			continue
		}
		if c.Offset > cursor && c.Offset-cursor >= need {
			return format.Chunk{Offset: cursor, Length: need}, fileSize, nil
		}
		cursor = c.End()
	}
	if fileSize > cursor && fileSize-cursor >= need {
		return format.Chunk{Offset: cursor, Length: need}, fileSize, nil
	}

	end := fileSize
	if cursor > end {
		end = cursor
	}
	off := format.AlignUp(end, extendAlign)
	return format.Chunk{Offset: off, Length: need}, off + need, nil
}
