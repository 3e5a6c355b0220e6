// Package layout assembles complete container images. The header sits at
// byte 0 but depends on the serialized size of every table behind it, so
// the Builder stages each table in its own buffer, places them behind a
// header-sized placeholder with a running 16-aligned offset cursor, and
// patches the header last.
package layout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/ftdb-labs/ftdb/core/format"
	"github.com/ftdb-labs/ftdb/core/journal"
	commonutils "github.com/ftdb-labs/ftdb/internal/common_utils"
	internaltelemetry "github.com/ftdb-labs/ftdb/internal/telemetry"
	"github.com/ftdb-labs/ftdb/pkg/telemetry"
)

// BuildState tracks where a Builder is in its single write cycle.
type BuildState int

const (
	StateStaging BuildState = iota // Content is being accumulated
	StateSealed                    // Serialization has started, content is frozen
	StateWritten                   // Image emitted, builder spent
	StateAborted                   // Serialization failed, builder unusable
)

var (
	ErrBuilderSealed  = errors.New("builder already sealed")
	ErrBuilderAborted = errors.New("builder aborted")
)

// Builder accumulates the content of one container image and serializes
// it in a single shot. It is scoped to exactly one write cycle: after
// Bytes or WriteTo succeeds the builder is spent, and after a
// serialization failure it is aborted. Not safe for concurrent use; the
// writer owns its cycle exclusively.
type Builder struct {
	id      string
	version uint32
	state   BuildState

	strings *format.StringInterner
	inodes  []format.Inode
	history []journal.Entry
	meta    []byte
	nextSeq uint64

	logger  *zap.Logger
	tel     *telemetry.Telemetry
	metrics *internaltelemetry.ContainerMetrics
}

// Option customizes a Builder at construction time.
type Option func(*Builder)

// WithLogger routes build lifecycle events to l instead of discarding them.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTelemetry wires the build metrics to tel's meter.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(b *Builder) { b.tel = tel }
}

// NewBuilder starts a staging build cycle producing an image of the given
// format version.
func NewBuilder(version uint32, opts ...Option) (*Builder, error) {
	if !format.SupportedVersion(version) {
		return nil, fmt.Errorf("%w: cannot write version %d", format.ErrUnsupportedVersion, version)
	}
	b := &Builder{
		id:      uuid.NewString(),
		version: version,
		strings: format.NewStringInterner(),
		nextSeq: 1,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.tel != nil {
		m, err := internaltelemetry.NewContainerMetrics(b.tel.Meter)
		if err != nil {
			b.logger.Warn("build metrics unavailable", zap.String("build_id", b.id), zap.Error(err))
		} else {
			b.metrics = m
		}
	}
	b.logger.Debug("build cycle started", zap.String("build_id", b.id), zap.Uint32("version", version))
	return b, nil
}

// ID returns the identifier stamped on this build cycle's logs and metrics.
func (b *Builder) ID() string { return b.id }

// State reports where the builder is in its lifecycle.
func (b *Builder) State() BuildState { return b.state }

func (b *Builder) mutable() error {
	switch b.state {
	case StateAborted:
		return ErrBuilderAborted
	case StateSealed, StateWritten:
		return ErrBuilderSealed
	}
	return nil
}

// Intern adds s to the string table and returns its index, reusing the
// index of an identical earlier string. Callers composing ACL entries use
// this to obtain principal indices.
func (b *Builder) Intern(s string) (uint64, error) {
	if err := b.mutable(); err != nil {
		return 0, err
	}
	return b.strings.Intern(s), nil
}

// AddPage appends a page descriptor to the inode table and returns its
// inode index. The name is interned; acls and chunks are copied. Pages
// that should exist only in the journal are added with AppendCreate
// targeting an index past the table instead.
func (b *Builder) AddPage(name string, acls []format.AclEntry, chunks []format.Chunk) (uint64, error) {
	if err := b.mutable(); err != nil {
		return 0, err
	}
	idx := uint64(len(b.inodes))
	b.inodes = append(b.inodes, format.Inode{
		NameIdx: b.strings.Intern(name),
		Acls:    commonutils.CloneSlice(acls),
		Chunks:  commonutils.CloneSlice(chunks),
	})
	return idx, nil
}

// SetMeta replaces the meta blob. The bytes are opaque to the layout;
// EncodeMeta produces the conventional settings blob.
func (b *Builder) SetMeta(meta []byte) error {
	if err := b.mutable(); err != nil {
		return err
	}
	b.meta = commonutils.CloneSlice(meta)
	return nil
}

// AppendHistory appends a journal entry with an explicit sequence key.
// The automatic sequence counter advances past it so later auto-keyed
// entries never collide with e. Duplicate keys are not rejected; replay
// resolves them deterministically by file position.
func (b *Builder) AppendHistory(e journal.Entry) error {
	if err := b.mutable(); err != nil {
		return err
	}
	b.history = append(b.history, e)
	if e.Seq >= b.nextSeq {
		b.nextSeq = e.Seq + 1
	}
	return nil
}

func (b *Builder) appendAuto(e journal.Entry) error {
	if err := b.mutable(); err != nil {
		return err
	}
	e.Seq = b.nextSeq
	b.nextSeq++
	b.history = append(b.history, e)
	return nil
}

// AppendSetChunks journals a wholesale chunk list replacement for target.
func (b *Builder) AppendSetChunks(target uint64, chunks []format.Chunk) error {
	return b.appendAuto(journal.Entry{
		Target: target,
		Op:     journal.OpSetChunks,
		Chunks: commonutils.CloneSlice(chunks),
	})
}

// AppendSetAcl journals a wholesale ACL list replacement for target.
func (b *Builder) AppendSetAcl(target uint64, acls []format.AclEntry) error {
	return b.appendAuto(journal.Entry{
		Target: target,
		Op:     journal.OpSetAcl,
		Acls:   commonutils.CloneSlice(acls),
	})
}

// AppendRename journals a name change for target. The new name is
// interned into this image's string table.
func (b *Builder) AppendRename(target uint64, name string) error {
	if err := b.mutable(); err != nil {
		return err
	}
	return b.appendAuto(journal.Entry{
		Target:  target,
		Op:      journal.OpRename,
		NameIdx: b.strings.Intern(name),
	})
}

// AppendDelete journals a tombstone for target.
func (b *Builder) AppendDelete(target uint64) error {
	return b.appendAuto(journal.Entry{Target: target, Op: journal.OpDelete})
}

// AppendCreate journals a fresh descriptor for target, typically an index
// past the inode table so the page exists only through the journal.
func (b *Builder) AppendCreate(target uint64, name string, acls []format.AclEntry, chunks []format.Chunk) error {
	if err := b.mutable(); err != nil {
		return err
	}
	return b.appendAuto(journal.Entry{
		Target: target,
		Op:     journal.OpCreate,
		Descriptor: &format.Inode{
			NameIdx: b.strings.Intern(name),
			Acls:    commonutils.CloneSlice(acls),
			Chunks:  commonutils.CloneSlice(chunks),
		},
	})
}

// stagedImage is the outcome of serialization: every table in its own
// buffer plus the finished header recording where each lands.
type stagedImage struct {
	header  format.Header
	strings []byte
	inodes  []byte
	history []byte
	meta    []byte
	total   uint64
}

// stage serializes the tables and runs the offset cursor over them:
// strings, inodes, history, meta, each rounded up to a 16-byte boundary
// behind the header placeholder. Offsets are final after this; only the
// physical write remains.
func (b *Builder) stage() (*stagedImage, error) {
	stringsBuf, err := b.strings.Encode()
	if err != nil {
		return nil, fmt.Errorf("string table: %w", err)
	}

	var inodesBuf bytes.Buffer
	for i := range b.inodes {
		if err := b.inodes[i].EncodeTo(&inodesBuf, b.version); err != nil {
			return nil, fmt.Errorf("inode %d: %w", i, err)
		}
	}

	var historyBuf bytes.Buffer
	for i := range b.history {
		if err := b.history[i].EncodeTo(&historyBuf, b.version); err != nil {
			return nil, fmt.Errorf("history entry %d: %w", i, err)
		}
	}

	img := &stagedImage{
		strings: stringsBuf,
		inodes:  inodesBuf.Bytes(),
		history: historyBuf.Bytes(),
		meta:    b.meta,
	}

	cursor := uint64(format.HeaderSize)
	stringOff := format.AlignUp(cursor, format.TableAlign)
	cursor = stringOff + uint64(len(img.strings))
	inodeOff := format.AlignUp(cursor, format.TableAlign)
	cursor = inodeOff + uint64(len(img.inodes))
	historyOff := format.AlignUp(cursor, format.TableAlign)
	cursor = historyOff + uint64(len(img.history))
	metaOff := format.AlignUp(cursor, format.TableAlign)
	cursor = metaOff + uint64(len(img.meta))

	img.header = format.Header{
		Magic:      format.Magic,
		Version:    b.version,
		InodeOff:   inodeOff,
		InodeLen:   uint64(len(b.inodes)),
		StringOff:  stringOff,
		StringLen:  b.strings.Len(),
		HistoryOff: historyOff,
		HistoryLen: uint64(len(b.history)),
		MetaOff:    metaOff,
		MetaLen:    uint64(len(img.meta)),
	}
	img.total = cursor
	return img, nil
}

// seal freezes the builder and serializes its content. A failure here
// aborts the cycle before any bytes reach the caller's sink.
func (b *Builder) seal() (*stagedImage, error) {
	if err := b.mutable(); err != nil {
		return nil, err
	}
	b.state = StateSealed
	img, err := b.stage()
	if err != nil {
		b.state = StateAborted
		b.logger.Error("build cycle aborted", zap.String("build_id", b.id), zap.Error(err))
		return nil, err
	}
	return img, nil
}

func (b *Builder) finish(total uint64, sink string, start time.Time) {
	b.state = StateWritten
	if b.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("sink", sink))
		b.metrics.BuildDurationHistogram.Record(context.Background(), time.Since(start).Milliseconds(), attrs)
		b.metrics.BytesWrittenCounter.Add(context.Background(), int64(total), attrs)
	}
	b.logger.Info("container image written",
		zap.String("build_id", b.id),
		zap.String("sink", sink),
		zap.Uint32("version", b.version),
		zap.Uint64("bytes", total),
		zap.Int("pages", len(b.inodes)),
		zap.Int("history_entries", len(b.history)),
	)
}

// Bytes serializes the whole image into memory and returns it. The
// builder is spent afterwards.
func (b *Builder) Bytes() ([]byte, error) {
	start := time.Now()
	img, err := b.seal()
	if err != nil {
		return nil, err
	}

	hdr, err := img.header.Encode()
	if err != nil {
		b.state = StateAborted
		b.logger.Error("build cycle aborted", zap.String("build_id", b.id), zap.Error(err))
		return nil, err
	}
	out := make([]byte, img.total)
	copy(out, hdr)
	copy(out[img.header.StringOff:], img.strings)
	copy(out[img.header.InodeOff:], img.inodes)
	copy(out[img.header.HistoryOff:], img.history)
	copy(out[img.header.MetaOff:], img.meta)

	b.finish(img.total, "buffer", start)
	return out, nil
}

// WriteTo serializes the image onto a seekable sink: a zeroed placeholder
// goes out first, then each table with its alignment padding, then one
// seek back to byte 0 to patch the real header in. It produces exactly
// the bytes Bytes would, and returns the image size. The builder is spent
// afterwards.
func (b *Builder) WriteTo(ws io.WriteSeeker) (int64, error) {
	start := time.Now()
	img, err := b.seal()
	if err != nil {
		return 0, err
	}

	abort := func(err error) (int64, error) {
		b.state = StateAborted
		b.logger.Error("build cycle aborted", zap.String("build_id", b.id), zap.Error(err))
		return 0, err
	}

	if _, err := ws.Write(make([]byte, format.HeaderSize)); err != nil {
		return abort(fmt.Errorf("header placeholder: %w", err))
	}
	cursor := uint64(format.HeaderSize)
	for _, table := range []struct {
		off  uint64
		data []byte
	}{
		{img.header.StringOff, img.strings},
		{img.header.InodeOff, img.inodes},
		{img.header.HistoryOff, img.history},
		{img.header.MetaOff, img.meta},
	} {
		if table.off > cursor {
			if _, err := ws.Write(make([]byte, table.off-cursor)); err != nil {
				return abort(fmt.Errorf("alignment padding: %w", err))
			}
		}
		if _, err := ws.Write(table.data); err != nil {
			return abort(fmt.Errorf("table at offset 0x%x: %w", table.off, err))
		}
		cursor = table.off + uint64(len(table.data))
	}

	hdr, err := img.header.Encode()
	if err != nil {
		return abort(err)
	}
	if _, err := ws.Seek(0, io.SeekStart); err != nil {
		return abort(fmt.Errorf("seek to header: %w", err))
	}
	if _, err := ws.Write(hdr); err != nil {
		return abort(fmt.Errorf("header patch: %w", err))
	}

	b.finish(img.total, "seeker", start)
	return int64(img.total), nil
}

// Blank produces the canonical empty container image: a root page "/"
// granting read, write, and execute to the wildcard principal "*", no
// data chunks, no history, and the default settings meta blob.
func Blank(version uint32, opts ...Option) ([]byte, error) {
	b, err := NewBuilder(version, opts...)
	if err != nil {
		return nil, err
	}
	star, err := b.Intern("*")
	if err != nil {
		return nil, err
	}
	if _, err := b.AddPage("/", []format.AclEntry{{Flags: format.AccessReadWriteExecute, Principal: star}}, nil); err != nil {
		return nil, err
	}
	meta, err := EncodeMeta(DefaultMeta())
	if err != nil {
		return nil, err
	}
	if err := b.SetMeta(meta); err != nil {
		return nil, err
	}
	return b.Bytes()
}
