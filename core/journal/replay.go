package journal

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ftdb-labs/ftdb/core/format"
	commonutils "github.com/ftdb-labs/ftdb/internal/common_utils"
)

// Effective is the reconstructed current state of one page: the base
// inode record with every history entry folded on top. It carries the
// attributes the on-disk record deliberately omits, which the journal is
// authoritative for.
type Effective struct {
	Index   uint64
	Present bool // false once an OpDelete lands, or if the index was never created

	NameIdx uint64
	Acls    []format.AclEntry
	Chunks  []format.Chunk

	// Size is the length of the page's logical byte stream, the sum of
	// the effective chunk lengths. Zero for absent pages.
	Size uint64

	// LastSeq is the sequence key of the last applied entry, zero when
	// the page is untouched by the journal. CreatedSeq is the sequence
	// key of the OpCreate that brought the page into existence, zero for
	// pages present in the inode table itself.
	LastSeq    uint64
	CreatedSeq uint64

	// Applied counts entries folded in; Skipped counts entries ignored
	// because they targeted an absent page; Conflicts counts duplicated
	// sequence keys seen while folding.
	Applied   int
	Skipped   int
	Conflicts int
}

// Resolver replays history entries onto base inode records. It is safe
// for concurrent use once constructed: resolving is a pure function of
// the parsed tables and never mutates them.
type Resolver struct {
	inodes   []format.Inode
	byTarget map[uint64][]Entry
	logger   *zap.Logger
}

// NewResolver builds a resolver over already-parsed tables. The slices
// are borrowed, not copied; they belong to the parse session and must not
// be mutated while the resolver lives. A nil logger disables replay
// warnings.
func NewResolver(inodes []format.Inode, history []Entry, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	byTarget := make(map[uint64][]Entry)
	for _, e := range history {
		byTarget[e.Target] = append(byTarget[e.Target], e)
	}
	// Ascending sequence key; the stable sort keeps file order for equal
	// keys, which is what makes tie-breaking deterministic.
	for _, group := range byTarget {
		sort.SliceStable(group, func(i, j int) bool { return group[i].Seq < group[j].Seq })
	}
	return &Resolver{inodes: inodes, byTarget: byTarget, logger: logger}
}

// Resolve folds all history entries targeting idx, in ascending sequence
// key order, onto the base record and returns the page's effective state.
//
// Ordering contract: entries sharing a sequence key are applied in file
// position order, earlier-appended first. The raw format guarantees no
// uniqueness of sequence keys, so this tie-break is what keeps replay
// deterministic across runs; duplicates are counted and logged as
// warnings, never failures.
//
// The base state is the on-disk inode record, or absent when idx lies
// beyond the inode table (a page that exists only through the journal).
// OpDelete is terminal: later entries for the index are skipped until an
// OpCreate re-enters the active state. Resolving performs no I/O and may
// be invoked repeatedly; an empty history returns the base record
// unchanged.
func (r *Resolver) Resolve(idx uint64) (Effective, error) {
	eff := Effective{Index: idx}
	if idx < uint64(len(r.inodes)) {
		base := r.inodes[idx]
		eff.Present = true
		eff.NameIdx = base.NameIdx
		eff.Acls = commonutils.CloneSlice(base.Acls)
		eff.Chunks = commonutils.CloneSlice(base.Chunks)
	}

	var prevSeq uint64
	havePrev := false
	for _, e := range r.byTarget[idx] {
		if havePrev && e.Seq == prevSeq {
			eff.Conflicts++
			r.logger.Warn("duplicate journal sequence key, applying in file order",
				zap.Uint64("inode", idx),
				zap.Uint64("sequence_key", e.Seq),
				zap.Error(format.ErrJournalSequenceConflict))
		}
		prevSeq, havePrev = e.Seq, true

		if !eff.Present && e.Op != OpCreate {
			eff.Skipped++
			r.logger.Warn("journal op targets absent inode, skipping",
				zap.Uint64("inode", idx),
				zap.Uint64("sequence_key", e.Seq),
				zap.String("op", e.Op.String()))
			continue
		}

		switch e.Op {
		case OpSetChunks:
			eff.Chunks = commonutils.CloneSlice(e.Chunks)
		case OpSetAcl:
			eff.Acls = commonutils.CloneSlice(e.Acls)
		case OpRename:
			eff.NameIdx = e.NameIdx
		case OpDelete:
			eff.Present = false
			eff.NameIdx = 0
			eff.Acls = nil
			eff.Chunks = nil
		case OpCreate:
			if e.Descriptor == nil {
				return Effective{}, fmt.Errorf("create entry for inode %d has no descriptor", idx)
			}
			if eff.Present {
				r.logger.Warn("create op targets active inode, replacing descriptor",
					zap.Uint64("inode", idx),
					zap.Uint64("sequence_key", e.Seq))
			}
			eff.Present = true
			eff.NameIdx = e.Descriptor.NameIdx
			eff.Acls = commonutils.CloneSlice(e.Descriptor.Acls)
			eff.Chunks = commonutils.CloneSlice(e.Descriptor.Chunks)
			eff.CreatedSeq = e.Seq
		default:
			return Effective{}, fmt.Errorf("%w: op %d targeting inode %d", ErrUnknownOp, byte(e.Op), idx)
		}
		eff.LastSeq = e.Seq
		eff.Applied++
	}

	if eff.Present {
		eff.Size = format.ChunksTotalLength(eff.Chunks)
	}
	return eff, nil
}

// Indexes returns every inode index the resolver knows of, ascending:
// all slots of the inode table plus any index the journal targets.
func (r *Resolver) Indexes() []uint64 {
	seen := make(map[uint64]struct{}, len(r.inodes)+len(r.byTarget))
	out := make([]uint64, 0, len(r.inodes)+len(r.byTarget))
	for i := range r.inodes {
		idx := uint64(i)
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	for idx := range r.byTarget {
		if _, ok := seen[idx]; !ok {
			out = append(out, idx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
