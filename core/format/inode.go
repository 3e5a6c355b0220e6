package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Inode is the on-disk page descriptor: a name, an ordered ACL list, and
// an ordered chunk list. It is deliberately NOT the full page state;
// current size, deletion status, and mutation attribution are resolved by
// replaying the history table on top of this base record.
type Inode struct {
	NameIdx uint64 // string table index
	Acls    []AclEntry
	Chunks  []Chunk
}

// inodePad returns the zero padding VersionAligned inserts between the ACL
// section and the chunk count. The record prefix up to that point is the
// two u64 header fields plus the ACL entries; the pad brings it to the
// next 16-byte boundary, with nothing added when it already lands on one.
func inodePad(aclCount uint64) int {
	prefix := 16 + aclEntrySize*aclCount
	return int(AlignUp(prefix, 16) - prefix)
}

// DecodeInodeFrom decodes exactly one inode record from d using the layout
// selected by version. The cursor is left on the first byte after the
// record, which is how the table scan walks count-delimited entries.
func DecodeInodeFrom(d *Decoder, version uint32) (Inode, error) {
	var ino Inode
	if !SupportedVersion(version) {
		return ino, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, version)
	}
	var err error
	if ino.NameIdx, err = d.U64(); err != nil {
		return ino, fmt.Errorf("inode name index: %w", err)
	}
	aclCount, err := d.U64()
	if err != nil {
		return ino, fmt.Errorf("inode acl count: %w", err)
	}
	if ino.Acls, err = DecodeAclList(d, aclCount); err != nil {
		return ino, err
	}
	if version == VersionAligned {
		if err := d.Skip(inodePad(aclCount)); err != nil {
			return ino, fmt.Errorf("inode acl padding: %w", err)
		}
	}
	chunkCount, err := d.U64()
	if err != nil {
		return ino, fmt.Errorf("inode chunk count: %w", err)
	}
	if ino.Chunks, err = DecodeChunkList(d, chunkCount); err != nil {
		return ino, err
	}
	return ino, nil
}

// DecodeInode decodes one inode record occupying the whole of b, where
// base is the absolute file offset of b[0]. Trailing bytes after the
// declared counts are a decode error, as are missing ones.
func DecodeInode(b []byte, base uint64, version uint32) (Inode, error) {
	d := NewDecoder(b, base)
	ino, err := DecodeInodeFrom(d, version)
	if err != nil {
		return Inode{}, err
	}
	if d.Remaining() != 0 {
		return Inode{}, fmt.Errorf("%w: %d trailing bytes after inode record at offset 0x%x", ErrTruncatedRecord, d.Remaining(), d.Offset())
	}
	return ino, nil
}

// DecodeInodeTable decodes count consecutive inode records from b, where
// base is the absolute file offset of b[0]. b may extend past the last
// record. A malformed record aborts the whole table, because index-based
// cross references make a partially parsed table unsafe to use.
func DecodeInodeTable(b []byte, base uint64, count uint64, version uint32) ([]Inode, error) {
	d := NewDecoder(b, base)
	inodes := make([]Inode, 0, listCap(count, 24, d.Remaining()))
	for i := uint64(0); i < count; i++ {
		ino, err := DecodeInodeFrom(d, version)
		if err != nil {
			return nil, fmt.Errorf("inode %d: %w", i, err)
		}
		inodes = append(inodes, ino)
	}
	return inodes, nil
}

// EncodeTo appends the record's encoding under the given layout version to
// buf. Serialization failures leave buf in an undefined state; callers
// stage records in scratch buffers before committing them.
func (ino Inode) EncodeTo(buf *bytes.Buffer, version uint32) error {
	if !SupportedVersion(version) {
		return fmt.Errorf("%w: version %d", ErrUnsupportedVersion, version)
	}
	if err := binary.Write(buf, binary.LittleEndian, ino.NameIdx); err != nil {
		return fmt.Errorf("failed to serialize inode name index: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, uint64(len(ino.Acls))); err != nil {
		return fmt.Errorf("failed to serialize inode acl count: %w", err)
	}
	for _, e := range ino.Acls {
		if err := e.EncodeTo(buf); err != nil {
			return err
		}
	}
	if version == VersionAligned {
		if _, err := buf.Write(make([]byte, inodePad(uint64(len(ino.Acls))))); err != nil {
			return fmt.Errorf("failed to write inode padding: %w", err)
		}
	}
	if err := binary.Write(buf, binary.LittleEndian, uint64(len(ino.Chunks))); err != nil {
		return fmt.Errorf("failed to serialize inode chunk count: %w", err)
	}
	for _, c := range ino.Chunks {
		if err := c.EncodeTo(buf); err != nil {
			return err
		}
	}
	return nil
}

// Encode returns the record's encoding under the given layout version.
func (ino Inode) Encode(version uint32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := ino.EncodeTo(buf, version); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
