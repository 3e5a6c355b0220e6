package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// encodeStrings builds a table image through the interner, returning the
// raw bytes the way the layout writer would stage them.
func encodeStrings(t *testing.T, names ...string) []byte {
	t.Helper()
	si := NewStringInterner()
	for _, n := range names {
		si.Intern(n)
	}
	raw, err := si.Encode()
	require.NoError(t, err)
	return raw
}

// TestStringTableRoundTrip verifies intern → encode → decode → resolve
// preserves entry order, contents, and indices.
func TestStringTableRoundTrip(t *testing.T) {
	names := []string{"/", "root", "alice", ""}
	raw := encodeStrings(t, names...)

	st, err := DecodeStringTable(raw, 0x100, uint64(len(names)))
	require.NoError(t, err)
	require.Equal(t, uint64(len(names)), st.Len())

	for i, want := range names {
		got, err := st.ResolveString(uint64(i))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

// TestStringTableIndexOutOfRange verifies that resolving past the entry
// count fails with ErrStringIndexOutOfRange.
func TestStringTableIndexOutOfRange(t *testing.T) {
	raw := encodeStrings(t, "only")
	st, err := DecodeStringTable(raw, 0, 1)
	require.NoError(t, err)

	_, err = st.Resolve(1)
	require.ErrorIs(t, err, ErrStringIndexOutOfRange)
	_, err = st.ResolveString(99)
	require.ErrorIs(t, err, ErrStringIndexOutOfRange)
}

// TestStringTableTruncated verifies that a count pointing past the
// available bytes aborts the whole table with ErrTruncatedRecord, and that
// the error names the file offset where decoding stopped.
func TestStringTableTruncated(t *testing.T) {
	raw := encodeStrings(t, "root")

	_, err := DecodeStringTable(raw, 0x200, 2)
	require.ErrorIs(t, err, ErrTruncatedRecord)
	require.Contains(t, err.Error(), "0x206")

	_, err = DecodeStringTable(raw[:3], 0x200, 1)
	require.ErrorIs(t, err, ErrTruncatedRecord)
}

// TestStringTableTrailingBytesIgnored verifies that bytes past the last
// counted entry do not affect the parse; tables are count-delimited and
// typically share the byte region with whatever follows them in the file.
func TestStringTableTrailingBytesIgnored(t *testing.T) {
	raw := append(encodeStrings(t, "a", "b"), 0xAA, 0xBB, 0xCC)

	st, err := DecodeStringTable(raw, 0, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(2), st.Len())
}

// TestStringInternerDeduplicates verifies identical strings share one
// index while distinct strings get fresh consecutive ones.
func TestStringInternerDeduplicates(t *testing.T) {
	si := NewStringInterner()
	a := si.Intern("alpha")
	b := si.Intern("beta")
	a2 := si.Intern("alpha")

	require.Equal(t, uint64(0), a)
	require.Equal(t, uint64(1), b)
	require.Equal(t, a, a2)
	require.Equal(t, uint64(2), si.Len())
}

// TestStringInternerRejectsOversized verifies the u16 length prefix bounds
// what a build can encode and that the failure is all-or-nothing.
func TestStringInternerRejectsOversized(t *testing.T) {
	si := NewStringInterner()
	si.Intern("fine")
	si.Intern(string(make([]byte, 1<<16)))

	_, err := si.Encode()
	require.ErrorIs(t, err, ErrStringTooLong)
}
