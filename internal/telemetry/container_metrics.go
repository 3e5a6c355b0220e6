package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// ContainerMetrics holds all the metric instruments for container
// reading, journal replay, and layout building.
type ContainerMetrics struct {
	OpenedCounter            metric.Int64Counter
	DecodeErrorsCounter      metric.Int64Counter
	PagesResolvedCounter     metric.Int64Counter
	SequenceConflictsCounter metric.Int64Counter
	BuildDurationHistogram   metric.Int64Histogram
	BytesWrittenCounter      metric.Int64Counter
	ActiveVerifiesUpDown     metric.Int64UpDownCounter
}

// NewContainerMetrics creates and registers all the metrics for the
// container codec.
func NewContainerMetrics(meter metric.Meter) (*ContainerMetrics, error) {
	openedCounter, err := meter.Int64Counter(
		"ftdb.container.opened_total",
		metric.WithDescription("Total number of containers opened."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	decodeErrorsCounter, err := meter.Int64Counter(
		"ftdb.container.decode_errors_total",
		metric.WithDescription("Total number of table decode failures."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pagesResolvedCounter, err := meter.Int64Counter(
		"ftdb.journal.pages_resolved_total",
		metric.WithDescription("Total number of page descriptors resolved through journal replay."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	sequenceConflictsCounter, err := meter.Int64Counter(
		"ftdb.journal.sequence_conflicts_total",
		metric.WithDescription("Total number of duplicate sequence keys observed during replay."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	buildDurationHistogram, err := meter.Int64Histogram(
		"ftdb.layout.build_duration",
		metric.WithDescription("The latency of container build cycles."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	bytesWrittenCounter, err := meter.Int64Counter(
		"ftdb.layout.bytes_written_total",
		metric.WithDescription("Total bytes emitted by the layout writer."),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	activeVerifiesUpDown, err := meter.Int64UpDownCounter(
		"ftdb.container.active_verifies",
		metric.WithDescription("Number of integrity scans in flight."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &ContainerMetrics{
		OpenedCounter:            openedCounter,
		DecodeErrorsCounter:      decodeErrorsCounter,
		PagesResolvedCounter:     pagesResolvedCounter,
		SequenceConflictsCounter: sequenceConflictsCounter,
		BuildDurationHistogram:   buildDurationHistogram,
		BytesWrittenCounter:      bytesWrittenCounter,
		ActiveVerifiesUpDown:     activeVerifiesUpDown,
	}, nil
}
