// Package container is the read-side facade over a serialized image: it
// parses the header eagerly, every table lazily, and resolves page
// descriptors through journal replay. A Container never mutates its byte
// source and is safe for any number of concurrent readers.
package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/ftdb-labs/ftdb/core/chunkio"
	"github.com/ftdb-labs/ftdb/core/format"
	"github.com/ftdb-labs/ftdb/core/journal"
	commonutils "github.com/ftdb-labs/ftdb/internal/common_utils"
	internaltelemetry "github.com/ftdb-labs/ftdb/internal/telemetry"
	"github.com/ftdb-labs/ftdb/pkg/telemetry"
)

// ErrPageAbsent marks operations against a page the journal has deleted
// or never created.
var ErrPageAbsent = errors.New("page is absent")

// Container is a read-only view over one container image. Table parses
// run at most once each; resolved descriptors are cached for repeat
// lookups. The byte source must stay immutable for the Container's
// lifetime.
type Container struct {
	src    io.ReaderAt
	size   int64
	header format.Header

	logger  *zap.Logger
	tel     *telemetry.Telemetry
	metrics *internaltelemetry.ContainerMetrics

	stringsOnce sync.Once
	strings     *format.StringTable
	stringsErr  error

	inodesOnce sync.Once
	inodes     []format.Inode
	inodesErr  error

	historyOnce sync.Once
	history     []journal.Entry
	historyErr  error

	metaOnce sync.Once
	meta     []byte
	metaErr  error

	resolverOnce sync.Once
	resolver     *journal.Resolver
	resolverErr  error

	resolved sync.Map // inode index -> journal.Effective
}

// Option customizes a Container at open time.
type Option func(*Container)

// WithLogger routes replay warnings and scan events to l instead of
// discarding them.
func WithLogger(l *zap.Logger) Option {
	return func(c *Container) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTelemetry wires the container metrics to tel's meter.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(c *Container) { c.tel = tel }
}

// Open parses the header of the image held by src and returns a reader
// over it. Only the header is touched here: the magic number and format
// version are validated strictly, while table offsets are checked lazily
// when the table is first parsed. size is the total size of the byte
// source.
func Open(src io.ReaderAt, size int64, opts ...Option) (*Container, error) {
	c := &Container{src: src, size: size, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.tel != nil {
		m, err := internaltelemetry.NewContainerMetrics(c.tel.Meter)
		if err != nil {
			c.logger.Warn("container metrics unavailable", zap.Error(err))
		} else {
			c.metrics = m
		}
	}
	if size < 0 {
		return nil, fmt.Errorf("container size %d is negative", size)
	}

	n := int64(format.HeaderSize)
	if size < n {
		n = size
	}
	raw := make([]byte, n)
	if n > 0 {
		if _, err := src.ReadAt(raw, 0); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
	h, err := format.ParseHeader(raw)
	if err != nil {
		c.noteDecodeError("header", err)
		return nil, err
	}
	c.header = h

	if c.metrics != nil {
		c.metrics.OpenedCounter.Add(context.Background(), 1)
	}
	c.logger.Debug("container opened",
		zap.Uint32("version", h.Version),
		zap.Int64("size", size),
		zap.Uint64("inodes", h.InodeLen),
		zap.Uint64("strings", h.StringLen),
		zap.Uint64("history_entries", h.HistoryLen),
		zap.Uint64("meta_bytes", h.MetaLen),
	)
	return c, nil
}

// OpenBytes opens an image held entirely in memory.
func OpenBytes(raw []byte, opts ...Option) (*Container, error) {
	return Open(bytes.NewReader(raw), int64(len(raw)), opts...)
}

// Header returns the parsed container header.
func (c *Container) Header() format.Header { return c.header }

// Version returns the image's format version.
func (c *Container) Version() uint32 { return c.header.Version }

// Size returns the total size of the byte source in bytes.
func (c *Container) Size() int64 { return c.size }

func (c *Container) noteDecodeError(table string, err error) {
	if c.metrics != nil {
		c.metrics.DecodeErrorsCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("table", table)))
	}
	c.logger.Warn("table decode failed", zap.String("table", table), zap.Error(err))
}

// tail reads the byte window from off to the end of the file. Tables
// whose byte size is unknown before parsing (their header length is an
// entry count) parse out of this window and ignore what trails them.
func (c *Container) tail(off uint64, table string) ([]byte, error) {
	if off < format.HeaderSize || off > uint64(c.size) {
		err := fmt.Errorf("%w: %s table at offset 0x%x, file holds [0x%x, 0x%x)",
			format.ErrOffsetOutOfRange, table, off, format.HeaderSize, c.size)
		c.noteDecodeError(table, err)
		return nil, err
	}
	raw := make([]byte, uint64(c.size)-off)
	if len(raw) == 0 {
		return raw, nil
	}
	if _, err := c.src.ReadAt(raw, int64(off)); err != nil {
		return nil, fmt.Errorf("read %s table at offset 0x%x: %w", table, off, err)
	}
	return raw, nil
}

// Strings parses the string table on first use and returns it.
func (c *Container) Strings() (*format.StringTable, error) {
	c.stringsOnce.Do(func() {
		var raw []byte
		if c.header.StringLen > 0 {
			if raw, c.stringsErr = c.tail(c.header.StringOff, "string"); c.stringsErr != nil {
				return
			}
		}
		c.strings, c.stringsErr = format.DecodeStringTable(raw, c.header.StringOff, c.header.StringLen)
		if c.stringsErr != nil {
			c.noteDecodeError("string", c.stringsErr)
		}
	})
	return c.strings, c.stringsErr
}

// Inodes parses the inode table on first use and returns the base page
// descriptor records. These are the raw on-disk records; Resolve folds
// the journal on top of them.
func (c *Container) Inodes() ([]format.Inode, error) {
	c.inodesOnce.Do(func() {
		var raw []byte
		if c.header.InodeLen > 0 {
			if raw, c.inodesErr = c.tail(c.header.InodeOff, "inode"); c.inodesErr != nil {
				return
			}
		}
		c.inodes, c.inodesErr = format.DecodeInodeTable(raw, c.header.InodeOff, c.header.InodeLen, c.header.Version)
		if c.inodesErr != nil {
			c.noteDecodeError("inode", c.inodesErr)
		}
	})
	return c.inodes, c.inodesErr
}

// History parses the history table on first use and returns the journal
// entries in file order.
func (c *Container) History() ([]journal.Entry, error) {
	c.historyOnce.Do(func() {
		var raw []byte
		if c.header.HistoryLen > 0 {
			if raw, c.historyErr = c.tail(c.header.HistoryOff, "history"); c.historyErr != nil {
				return
			}
		}
		c.history, c.historyErr = journal.DecodeHistoryTable(raw, c.header.HistoryOff, c.header.HistoryLen, c.header.Version)
		if c.historyErr != nil {
			c.noteDecodeError("history", c.historyErr)
		}
	})
	return c.history, c.historyErr
}

// Meta reads the meta blob on first use. The bytes are opaque here;
// layout.DecodeMeta parses the conventional settings schema.
func (c *Container) Meta() ([]byte, error) {
	c.metaOnce.Do(func() {
		if c.header.MetaLen == 0 {
			c.meta = []byte{}
			return
		}
		off, length := c.header.MetaOff, c.header.MetaLen
		end := off + length
		if off < format.HeaderSize || end < off || end > uint64(c.size) {
			c.metaErr = fmt.Errorf("%w: meta blob spans [0x%x, 0x%x), file holds [0x%x, 0x%x)",
				format.ErrOffsetOutOfRange, off, end, format.HeaderSize, c.size)
			c.noteDecodeError("meta", c.metaErr)
			return
		}
		raw := make([]byte, length)
		if _, err := c.src.ReadAt(raw, int64(off)); err != nil {
			c.metaErr = fmt.Errorf("read meta blob at offset 0x%x: %w", off, err)
			return
		}
		c.meta = raw
	})
	return c.meta, c.metaErr
}

func (c *Container) resolverInit() (*journal.Resolver, error) {
	c.resolverOnce.Do(func() {
		inodes, err := c.Inodes()
		if err != nil {
			c.resolverErr = err
			return
		}
		history, err := c.History()
		if err != nil {
			c.resolverErr = err
			return
		}
		c.resolver = journal.NewResolver(inodes, history, c.logger)
	})
	return c.resolver, c.resolverErr
}

// Resolve replays the journal for page idx and returns its effective
// descriptor. Results are cached; the returned value is shared between
// callers and must be treated as read-only.
func (c *Container) Resolve(idx uint64) (journal.Effective, error) {
	if v, ok := c.resolved.Load(idx); ok {
		return v.(journal.Effective), nil
	}
	r, err := c.resolverInit()
	if err != nil {
		return journal.Effective{}, err
	}
	eff, err := r.Resolve(idx)
	if err != nil {
		return journal.Effective{}, err
	}
	c.resolved.Store(idx, eff)
	if c.metrics != nil {
		c.metrics.PagesResolvedCounter.Add(context.Background(), 1)
		if eff.Conflicts > 0 {
			c.metrics.SequenceConflictsCounter.Add(context.Background(), int64(eff.Conflicts))
		}
	}
	return eff, nil
}

// Indexes returns every inode index the container knows: the inode table
// slots plus indexes only the journal mentions, ascending.
func (c *Container) Indexes() ([]uint64, error) {
	r, err := c.resolverInit()
	if err != nil {
		return nil, err
	}
	return r.Indexes(), nil
}

// ResolveAll replays the journal for every index the container knows and
// returns the effective descriptors, including absent ones. The results
// prime the per-page cache in bulk.
func (c *Container) ResolveAll() (map[uint64]journal.Effective, error) {
	r, err := c.resolverInit()
	if err != nil {
		return nil, err
	}
	indexes := r.Indexes()
	out := make(map[uint64]journal.Effective, len(indexes))
	var conflicts int
	for _, idx := range indexes {
		eff, err := r.Resolve(idx)
		if err != nil {
			return nil, err
		}
		out[idx] = eff
		conflicts += eff.Conflicts
	}
	commonutils.CopyToSyncMap(out, &c.resolved)
	if c.metrics != nil {
		c.metrics.PagesResolvedCounter.Add(context.Background(), int64(len(out)))
		if conflicts > 0 {
			c.metrics.SequenceConflictsCounter.Add(context.Background(), int64(conflicts))
		}
	}
	return out, nil
}

// PageName resolves the effective name of page idx through the string
// table.
func (c *Container) PageName(idx uint64) (string, error) {
	eff, err := c.Resolve(idx)
	if err != nil {
		return "", err
	}
	if !eff.Present {
		return "", fmt.Errorf("%w: page %d", ErrPageAbsent, idx)
	}
	st, err := c.Strings()
	if err != nil {
		return "", err
	}
	return st.ResolveString(eff.NameIdx)
}

// PageData streams the effective logical byte stream of page idx into w:
// every effective chunk, read in list order. The number of bytes written
// equals the resolved descriptor's Size on success.
func (c *Container) PageData(ctx context.Context, idx uint64, w io.Writer) (int64, error) {
	eff, err := c.Resolve(idx)
	if err != nil {
		return 0, err
	}
	if !eff.Present {
		return 0, fmt.Errorf("%w: page %d", ErrPageAbsent, idx)
	}
	return chunkio.GatherInto(ctx, w, c.src, c.size, eff.Chunks, nil)
}
