package chunkio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ftdb-labs/ftdb/core/format"
)

// TestFindFreeExtentFirstFit verifies the scan takes the first gap big
// enough between extents, with input order not mattering.
func TestFindFreeExtentFirstFit(t *testing.T) {
	taken := []format.Chunk{
		{Offset: 0x300, Length: 0x100}, // deliberately unsorted
		{Offset: 0x100, Length: 0x80},
	}

	// Gap [0x180, 0x300) is 0x180 bytes; a 0x100 request fits there.
	c, size, err := FindFreeExtent(taken, 0x100, 0x1000, 0x100)
	require.NoError(t, err)
	require.Equal(t, format.Chunk{Offset: 0x180, Length: 0x100}, c)
	require.Equal(t, uint64(0x1000), size, "no growth when a gap fits")

	// A request too big for that gap lands in the tail gap before EOF.
	c, size, err = FindFreeExtent(taken, 0x100, 0x1000, 0x200)
	require.NoError(t, err)
	require.Equal(t, format.Chunk{Offset: 0x400, Length: 0x200}, c)
	require.Equal(t, uint64(0x1000), size)
}

// TestFindFreeExtentHonorsDataStart verifies space below dataStart is
// never handed out even when empty.
func TestFindFreeExtentHonorsDataStart(t *testing.T) {
	c, _, err := FindFreeExtent(nil, 0x50, 0x1000, 0x10)
	require.NoError(t, err)
	require.Equal(t, uint64(0x50), c.Offset)
}

// TestFindFreeExtentGrowsFile verifies the fallback: when nothing fits,
// the allocation starts at EOF rounded up to the page boundary and the
// file size grows to cover it.
func TestFindFreeExtentGrowsFile(t *testing.T) {
	taken := []format.Chunk{{Offset: 0x50, Length: 0xFB0}} // occupies through 0x1000

	c, size, err := FindFreeExtent(taken, 0x50, 0x1000, 0x40)
	require.NoError(t, err)
	require.Equal(t, format.Chunk{Offset: 0x1000, Length: 0x40}, c)
	require.Equal(t, uint64(0x1040), size)

	// An unaligned EOF rounds up before placing.
	c, size, err = FindFreeExtent(nil, 0x50, 0x1234, 0x2000)
	require.NoError(t, err)
	require.Equal(t, uint64(0x2000), c.Offset)
	require.Equal(t, uint64(0x4000), size)
}

// TestFindFreeExtentOverlapsAndZeroes verifies overlapping extents and
// zero-length extents don't confuse the cursor.
func TestFindFreeExtentOverlapsAndZeroes(t *testing.T) {
	taken := []format.Chunk{
		{Offset: 0x100, Length: 0x100},
		{Offset: 0x180, Length: 0x100}, // overlaps the first
		{Offset: 0x500, Length: 0},     // occupies nothing
	}

	c, _, err := FindFreeExtent(taken, 0x100, 0x1000, 0x80)
	require.NoError(t, err)
	require.Equal(t, uint64(0x280), c.Offset, "cursor must clear the overlap's true end")
}

// TestFindFreeExtentZeroNeed verifies the degenerate request is refused.
func TestFindFreeExtentZeroNeed(t *testing.T) {
	_, _, err := FindFreeExtent(nil, 0x50, 0x1000, 0)
	require.Error(t, err)
}

// TestFindFreeExtentDoesNotMutateInput verifies the caller's extent list
// is left in its original order despite the internal sort.
func TestFindFreeExtentDoesNotMutateInput(t *testing.T) {
	taken := []format.Chunk{
		{Offset: 0x300, Length: 0x10},
		{Offset: 0x100, Length: 0x10},
	}
	_, _, err := FindFreeExtent(taken, 0x50, 0x1000, 0x10)
	require.NoError(t, err)
	require.Equal(t, uint64(0x300), taken[0].Offset)
}
