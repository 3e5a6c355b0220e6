// Package journal implements the container's history table, an
// append-only ordered log of page mutation events, and the replay engine
// that folds those events onto base inode records to reconstruct a page's
// effective current state.
package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ftdb-labs/ftdb/core/format"
)

// OpKind identifies the mutation a history entry records.
type OpKind byte

const (
	OpSetChunks OpKind = iota + 1 // replace the chunk list wholesale
	OpSetAcl                      // replace the ACL list wholesale
	OpRename                      // replace the name index
	OpDelete                      // move the page to the terminal absent state
	OpCreate                      // (re-)enter the active state with a fresh descriptor
)

func (k OpKind) String() string {
	switch k {
	case OpSetChunks:
		return "set_chunks"
	case OpSetAcl:
		return "set_acl"
	case OpRename:
		return "rename"
	case OpDelete:
		return "delete"
	case OpCreate:
		return "create"
	default:
		return fmt.Sprintf("op(%d)", byte(k))
	}
}

// ErrUnknownOp reports a history entry whose op kind byte is not one of
// the defined operations. It aborts the whole table parse.
var ErrUnknownOp = errors.New("unknown history op kind")

// Entry is one history table record. Exactly one payload group is
// meaningful, selected by Op: Chunks for OpSetChunks, Acls for OpSetAcl,
// NameIdx for OpRename, Descriptor for OpCreate. OpDelete carries no
// payload. Entries are append-only; once written they are never rewritten
// or removed.
type Entry struct {
	Target uint64 // inode index the entry applies to
	Seq    uint64 // ordering key; ties resolve by file position
	Op     OpKind

	Chunks     []format.Chunk    // OpSetChunks
	Acls       []format.AclEntry // OpSetAcl
	NameIdx    uint64            // OpRename
	Descriptor *format.Inode     // OpCreate
}

// DecodeEntryFrom decodes exactly one history entry from d. The version
// selects the inode record layout inside OpCreate payloads; it matches the
// container header's version field.
func DecodeEntryFrom(d *format.Decoder, version uint32) (Entry, error) {
	var e Entry
	var err error
	if e.Target, err = d.U64(); err != nil {
		return e, fmt.Errorf("history target: %w", err)
	}
	if e.Seq, err = d.U64(); err != nil {
		return e, fmt.Errorf("history sequence key: %w", err)
	}
	opOff := d.Offset()
	op, err := d.U8()
	if err != nil {
		return e, fmt.Errorf("history op kind: %w", err)
	}
	e.Op = OpKind(op)

	switch e.Op {
	case OpSetChunks:
		count, err := d.U64()
		if err != nil {
			return e, fmt.Errorf("set_chunks count: %w", err)
		}
		if e.Chunks, err = format.DecodeChunkList(d, count); err != nil {
			return e, fmt.Errorf("set_chunks payload: %w", err)
		}
	case OpSetAcl:
		count, err := d.U64()
		if err != nil {
			return e, fmt.Errorf("set_acl count: %w", err)
		}
		if e.Acls, err = format.DecodeAclList(d, count); err != nil {
			return e, fmt.Errorf("set_acl payload: %w", err)
		}
	case OpRename:
		if e.NameIdx, err = d.U64(); err != nil {
			return e, fmt.Errorf("rename payload: %w", err)
		}
	case OpDelete:
		// No payload.
	case OpCreate:
		ino, err := format.DecodeInodeFrom(d, version)
		if err != nil {
			return e, fmt.Errorf("create payload: %w", err)
		}
		e.Descriptor = &ino
	default:
		return e, fmt.Errorf("%w: op %d at offset 0x%x", ErrUnknownOp, op, opOff)
	}
	return e, nil
}

// DecodeHistoryTable decodes count consecutive entries from b, where base
// is the absolute file offset of b[0]. Entries come back in file order,
// which the replay engine relies on for deterministic tie-breaking. One
// malformed entry aborts the whole table.
func DecodeHistoryTable(b []byte, base uint64, count uint64, version uint32) ([]Entry, error) {
	d := format.NewDecoder(b, base)
	entries := make([]Entry, 0, listCap(count, d.Remaining()))
	for i := uint64(0); i < count; i++ {
		e, err := DecodeEntryFrom(d, version)
		if err != nil {
			return nil, fmt.Errorf("history entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// listCap bounds the pre-allocation for a corrupt count; the smallest
// possible entry (an OpDelete) is 17 bytes.
func listCap(count uint64, remaining int) int {
	most := remaining / 17
	if count < uint64(most) {
		return int(count)
	}
	return most
}

// EncodeTo appends the entry's encoding to buf. The version selects the
// inode record layout for OpCreate payloads.
func (e *Entry) EncodeTo(buf *bytes.Buffer, version uint32) error {
	if err := binary.Write(buf, binary.LittleEndian, e.Target); err != nil {
		return fmt.Errorf("failed to serialize history target: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, e.Seq); err != nil {
		return fmt.Errorf("failed to serialize history sequence key: %w", err)
	}
	if err := buf.WriteByte(byte(e.Op)); err != nil {
		return fmt.Errorf("failed to serialize history op kind: %w", err)
	}

	switch e.Op {
	case OpSetChunks:
		if err := binary.Write(buf, binary.LittleEndian, uint64(len(e.Chunks))); err != nil {
			return fmt.Errorf("failed to serialize set_chunks count: %w", err)
		}
		for _, c := range e.Chunks {
			if err := c.EncodeTo(buf); err != nil {
				return err
			}
		}
	case OpSetAcl:
		if err := binary.Write(buf, binary.LittleEndian, uint64(len(e.Acls))); err != nil {
			return fmt.Errorf("failed to serialize set_acl count: %w", err)
		}
		for _, a := range e.Acls {
			if err := a.EncodeTo(buf); err != nil {
				return err
			}
		}
	case OpRename:
		if err := binary.Write(buf, binary.LittleEndian, e.NameIdx); err != nil {
			return fmt.Errorf("failed to serialize rename payload: %w", err)
		}
	case OpDelete:
		// No payload.
	case OpCreate:
		if e.Descriptor == nil {
			return fmt.Errorf("create entry for inode %d has no descriptor", e.Target)
		}
		if err := e.Descriptor.EncodeTo(buf, version); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: op %d", ErrUnknownOp, byte(e.Op))
	}
	return nil
}

// Encode returns the entry's encoding under the given format version.
func (e *Entry) Encode(version uint32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := e.EncodeTo(buf, version); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
