package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Permission bits within an ACL entry's flags byte. The codec round-trips
// the raw byte without interpreting it; these names cover the assignments
// higher layers conventionally use, and the remaining five bits are theirs
// to define.
const (
	PermRead    byte = 1 << 0
	PermWrite   byte = 1 << 1
	PermExecute byte = 1 << 2
)

// Common flag combinations.
const (
	AccessNone             byte = 0
	AccessRead                  = PermRead
	AccessReadWrite             = PermRead | PermWrite
	AccessReadExecute           = PermRead | PermExecute
	AccessReadWriteExecute      = PermRead | PermWrite | PermExecute
)

// AclEntry grants the principal named by a string-table index whatever the
// flags byte encodes. Entries form an ordered list owned by exactly one
// page descriptor.
type AclEntry struct {
	Flags     byte
	Principal uint64 // string table index
}

// CanRead reports whether the conventional read bit is set.
func (e AclEntry) CanRead() bool { return e.Flags&PermRead != 0 }

// CanWrite reports whether the conventional write bit is set.
func (e AclEntry) CanWrite() bool { return e.Flags&PermWrite != 0 }

// CanExecute reports whether the conventional execute bit is set.
func (e AclEntry) CanExecute() bool { return e.Flags&PermExecute != 0 }

// DecodeAclEntry decodes a single 9-byte entry from d.
func DecodeAclEntry(d *Decoder) (AclEntry, error) {
	var e AclEntry
	var err error
	if e.Flags, err = d.U8(); err != nil {
		return e, fmt.Errorf("acl flags: %w", err)
	}
	if e.Principal, err = d.U64(); err != nil {
		return e, fmt.Errorf("acl principal: %w", err)
	}
	return e, nil
}

// EncodeTo appends the entry's 9-byte encoding to buf.
func (e AclEntry) EncodeTo(buf *bytes.Buffer) error {
	if err := buf.WriteByte(e.Flags); err != nil {
		return fmt.Errorf("failed to serialize acl flags: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, e.Principal); err != nil {
		return fmt.Errorf("failed to serialize acl principal: %w", err)
	}
	return nil
}

// DecodeAclList decodes count consecutive 9-byte entries from d.
func DecodeAclList(d *Decoder, count uint64) ([]AclEntry, error) {
	acls := make([]AclEntry, 0, listCap(count, aclEntrySize, d.Remaining()))
	for i := uint64(0); i < count; i++ {
		e, err := DecodeAclEntry(d)
		if err != nil {
			return nil, fmt.Errorf("acl entry %d: %w", i, err)
		}
		acls = append(acls, e)
	}
	return acls, nil
}
