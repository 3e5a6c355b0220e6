package journal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ftdb-labs/ftdb/core/format"
)

// newTestResolver builds a resolver with a development logger so replay
// warnings show up under go test -v.
func newTestResolver(t *testing.T, inodes []format.Inode, history []Entry) *Resolver {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return NewResolver(inodes, history, logger)
}

// baseInodes returns a two-slot inode table: a root page with one chunk
// and an access-controlled page with two.
func baseInodes() []format.Inode {
	return []format.Inode{
		{NameIdx: 0, Chunks: []format.Chunk{{Offset: 64, Length: 128}}},
		{
			NameIdx: 1,
			Acls:    []format.AclEntry{{Flags: format.AccessReadWriteExecute, Principal: 2}},
			Chunks:  []format.Chunk{{Offset: 0x200, Length: 0x40}, {Offset: 0x100, Length: 0x20}},
		},
	}
}

// TestResolveEmptyHistory verifies the idempotence property: with no
// history entries the effective descriptor is exactly the base record.
func TestResolveEmptyHistory(t *testing.T) {
	r := newTestResolver(t, baseInodes(), nil)

	eff, err := r.Resolve(0)
	require.NoError(t, err)
	require.True(t, eff.Present)
	require.Equal(t, uint64(0), eff.NameIdx)
	require.Equal(t, []format.Chunk{{Offset: 64, Length: 128}}, eff.Chunks)
	require.Equal(t, uint64(128), eff.Size)
	require.Zero(t, eff.LastSeq)
	require.Zero(t, eff.Applied)
}

// TestResolveBeyondTableIsAbsent verifies an index past the inode table
// resolves to absent when the journal never created it.
func TestResolveBeyondTableIsAbsent(t *testing.T) {
	r := newTestResolver(t, baseInodes(), nil)

	eff, err := r.Resolve(7)
	require.NoError(t, err)
	require.False(t, eff.Present)
	require.Zero(t, eff.Size)
}

// TestResolveSetChunksReplacesWholesale verifies OpSetChunks swaps the
// entire chunk list and the effective size follows the new list.
func TestResolveSetChunksReplacesWholesale(t *testing.T) {
	history := []Entry{
		{Target: 1, Seq: 5, Op: OpSetChunks, Chunks: []format.Chunk{{Offset: 0x400, Length: 0x10}}},
	}
	r := newTestResolver(t, baseInodes(), history)

	eff, err := r.Resolve(1)
	require.NoError(t, err)
	require.Equal(t, []format.Chunk{{Offset: 0x400, Length: 0x10}}, eff.Chunks)
	require.Equal(t, uint64(0x10), eff.Size)
	require.Equal(t, uint64(5), eff.LastSeq)
	require.Equal(t, 1, eff.Applied)
	// ACLs and name are untouched.
	require.Equal(t, baseInodes()[1].Acls, eff.Acls)
	require.Equal(t, uint64(1), eff.NameIdx)
}

// TestResolveSizeSaturates verifies the effective size of a page whose
// chunk lengths overflow the uint64 sum saturates at MaxUint64 rather
// than wrapping to a small value.
func TestResolveSizeSaturates(t *testing.T) {
	history := []Entry{
		{Target: 0, Seq: 1, Op: OpSetChunks, Chunks: []format.Chunk{
			{Offset: 0, Length: 1 << 63},
			{Offset: 0, Length: 1 << 63},
			{Offset: 0, Length: 16},
		}},
	}
	r := newTestResolver(t, baseInodes(), history)

	eff, err := r.Resolve(0)
	require.NoError(t, err)
	require.True(t, eff.Present)
	require.Equal(t, uint64(math.MaxUint64), eff.Size)
}

// TestResolveAclAndRename verifies OpSetAcl and OpRename fold in sequence
// key order regardless of the order entries appear in the table.
func TestResolveAclAndRename(t *testing.T) {
	history := []Entry{
		{Target: 0, Seq: 9, Op: OpRename, NameIdx: 4},
		{Target: 0, Seq: 3, Op: OpRename, NameIdx: 3},
		{Target: 0, Seq: 6, Op: OpSetAcl, Acls: []format.AclEntry{{Flags: format.AccessRead, Principal: 1}}},
	}
	r := newTestResolver(t, baseInodes(), history)

	eff, err := r.Resolve(0)
	require.NoError(t, err)
	require.Equal(t, uint64(4), eff.NameIdx, "the highest sequence key wins the name")
	require.Equal(t, []format.AclEntry{{Flags: format.AccessRead, Principal: 1}}, eff.Acls)
	require.Equal(t, uint64(9), eff.LastSeq)
	require.Equal(t, 3, eff.Applied)
}

// TestResolveDeleteIsTerminal verifies OpDelete lands the page in the
// absent state and later non-create entries are skipped, not applied.
func TestResolveDeleteIsTerminal(t *testing.T) {
	history := []Entry{
		{Target: 0, Seq: 1, Op: OpDelete},
		{Target: 0, Seq: 2, Op: OpSetChunks, Chunks: []format.Chunk{{Offset: 1, Length: 1}}},
		{Target: 0, Seq: 3, Op: OpRename, NameIdx: 9},
	}
	r := newTestResolver(t, baseInodes(), history)

	eff, err := r.Resolve(0)
	require.NoError(t, err)
	require.False(t, eff.Present)
	require.Zero(t, eff.Size)
	require.Empty(t, eff.Chunks)
	require.Equal(t, uint64(1), eff.LastSeq, "skipped entries do not count as applied")
	require.Equal(t, 1, eff.Applied)
	require.Equal(t, 2, eff.Skipped)
}

// TestResolveCreateReenters verifies OpCreate brings a deleted page back
// with a fresh descriptor, and that CreatedSeq records the re-creation.
func TestResolveCreateReenters(t *testing.T) {
	fresh := format.Inode{
		NameIdx: 5,
		Acls:    []format.AclEntry{{Flags: format.AccessReadWrite, Principal: 0}},
		Chunks:  []format.Chunk{{Offset: 0x800, Length: 0x100}},
	}
	history := []Entry{
		{Target: 0, Seq: 1, Op: OpDelete},
		{Target: 0, Seq: 2, Op: OpCreate, Descriptor: &fresh},
		{Target: 0, Seq: 3, Op: OpSetChunks, Chunks: []format.Chunk{{Offset: 0x900, Length: 0x80}}},
	}
	r := newTestResolver(t, baseInodes(), history)

	eff, err := r.Resolve(0)
	require.NoError(t, err)
	require.True(t, eff.Present)
	require.Equal(t, uint64(5), eff.NameIdx)
	require.Equal(t, []format.Chunk{{Offset: 0x900, Length: 0x80}}, eff.Chunks)
	require.Equal(t, uint64(2), eff.CreatedSeq)
	require.Equal(t, uint64(3), eff.LastSeq)
	require.Equal(t, 3, eff.Applied)
}

// TestResolveJournalOnlyInode verifies a page that exists purely through
// the journal: absent until its OpCreate, with earlier ops skipped.
func TestResolveJournalOnlyInode(t *testing.T) {
	fresh := format.Inode{NameIdx: 8, Chunks: []format.Chunk{{Offset: 0x40, Length: 0x20}}}
	history := []Entry{
		{Target: 10, Seq: 1, Op: OpSetChunks, Chunks: []format.Chunk{{Offset: 1, Length: 1}}},
		{Target: 10, Seq: 2, Op: OpCreate, Descriptor: &fresh},
	}
	r := newTestResolver(t, baseInodes(), history)

	eff, err := r.Resolve(10)
	require.NoError(t, err)
	require.True(t, eff.Present)
	require.Equal(t, uint64(8), eff.NameIdx)
	require.Equal(t, uint64(0x20), eff.Size)
	require.Equal(t, uint64(2), eff.CreatedSeq)
	require.Equal(t, 1, eff.Skipped)
}

// TestResolveSequenceTieIsDeterministic verifies the documented
// tie-break: entries with identical sequence keys apply in file position
// order, earlier-appended first, stable across repeated resolutions.
func TestResolveSequenceTieIsDeterministic(t *testing.T) {
	history := []Entry{
		{Target: 0, Seq: 7, Op: OpRename, NameIdx: 100},
		{Target: 0, Seq: 7, Op: OpRename, NameIdx: 200},
	}
	r := newTestResolver(t, baseInodes(), history)

	for run := 0; run < 5; run++ {
		eff, err := r.Resolve(0)
		require.NoError(t, err)
		require.Equal(t, uint64(200), eff.NameIdx, "later file position wins the final state")
		require.Equal(t, 1, eff.Conflicts)
		require.Equal(t, 2, eff.Applied)
	}
}

// TestResolveDoesNotMutateBase verifies replay is a pure fold: the
// returned slices are copies, and resolving twice gives equal results
// even after the caller scribbles on the first result.
func TestResolveDoesNotMutateBase(t *testing.T) {
	inodes := baseInodes()
	history := []Entry{
		{Target: 1, Seq: 2, Op: OpSetAcl, Acls: []format.AclEntry{{Flags: format.AccessRead, Principal: 9}}},
	}
	r := newTestResolver(t, inodes, history)

	first, err := r.Resolve(1)
	require.NoError(t, err)
	first.Chunks[0].Offset = 0xDEAD
	first.Acls[0].Principal = 0xBEEF

	second, err := r.Resolve(1)
	require.NoError(t, err)
	require.Equal(t, uint64(0x200), second.Chunks[0].Offset)
	require.Equal(t, uint64(9), second.Acls[0].Principal)
	require.Equal(t, uint64(0x200), inodes[1].Chunks[0].Offset, "the parsed table itself is untouched")
}

// TestResolverIndexes verifies the index set is the inode table plus
// journal-only targets, ascending.
func TestResolverIndexes(t *testing.T) {
	history := []Entry{
		{Target: 9, Seq: 1, Op: OpCreate, Descriptor: &format.Inode{}},
		{Target: 4, Seq: 2, Op: OpDelete},
		{Target: 1, Seq: 3, Op: OpRename, NameIdx: 0},
	}
	r := newTestResolver(t, baseInodes(), history)

	require.Equal(t, []uint64{0, 1, 4, 9}, r.Indexes())
}
