package layout

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Meta is the conventional schema of the meta blob: provider settings
// stamped at build time. The blob itself stays opaque to the codec, so
// containers written by other tools may carry anything here.
type Meta struct {
	// MaxPageSize caps the logical byte stream of a single page.
	MaxPageSize uint64 `yaml:"max_page_size"`
	// MaxChunkSize caps one extent; larger pages span multiple chunks.
	MaxChunkSize uint64 `yaml:"max_chunk_size"`
	// MaxJournalSize is the entry count past which a provider should
	// rewrite the container instead of appending.
	MaxJournalSize uint64 `yaml:"max_journal_size"`
	// ReallocationVolume is the granularity new extents are carved in.
	ReallocationVolume uint64 `yaml:"reallocation_volume"`
}

// DefaultMeta returns the settings blank containers carry.
func DefaultMeta() Meta {
	return Meta{
		MaxPageSize:        0x1_000_000_000,
		MaxChunkSize:       0x100_0000,
		MaxJournalSize:     100,
		ReallocationVolume: 0x1000,
	}
}

// EncodeMeta serializes settings into meta blob bytes.
func EncodeMeta(m Meta) ([]byte, error) {
	b, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize meta settings: %w", err)
	}
	return b, nil
}

// DecodeMeta parses a meta blob produced by EncodeMeta.
func DecodeMeta(b []byte) (Meta, error) {
	var m Meta
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Meta{}, fmt.Errorf("failed to parse meta settings: %w", err)
	}
	return m, nil
}
