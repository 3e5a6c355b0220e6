// Package format implements the on-disk encoding of the FTDB container:
// the fixed header, the string table, ACL entries, chunk lists, and inode
// (page descriptor) records. All integers are little-endian. Components
// higher up the stack (journal replay, layout planning, the container
// facade) build on the codecs defined here and never touch raw bytes
// themselves.
package format

// Magic is the 32-bit magic number at offset 0 of every container file,
// read as a little-endian value. On disk the first four bytes are
// 0x46 0x54 0x44 0x42, the ASCII string "FTDB".
const Magic uint32 = 0x42445446

// HeaderSize is the fixed size of the container header in bytes.
const HeaderSize = 0x50

// Format versions understood by this package. The version gates the inode
// record layout: VersionPacked lays ACL entries and the chunk section out
// back to back, VersionAligned inserts zero padding after the ACL section
// so the chunk count starts on a 16-byte boundary within the record.
// Readers accept both; writers default to VersionAligned.
const (
	VersionPacked  uint32 = 1
	VersionAligned uint32 = 2
)

// TableAlign is the alignment writers give every table offset. Readers
// must accept unaligned offsets.
const TableAlign = 16

const (
	aclEntrySize  = 9  // flags u8 + principal index u64
	chunkPairSize = 16 // offset u64 + length u64
)

// SupportedVersion reports whether v selects a known inode record layout.
func SupportedVersion(v uint32) bool {
	return v == VersionPacked || v == VersionAligned
}

// AlignUp rounds n up to the next multiple of align. Values already on the
// boundary are returned unchanged.
func AlignUp(n, align uint64) uint64 {
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}
