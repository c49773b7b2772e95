package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/analytics-tools/internal/observability"
	"github.com/upb/analytics-tools/internal/shared"
	"github.com/upb/analytics-tools/services"
	"github.com/upb/analytics-tools/services/mixpanel"
	"go.uber.org/zap"
)

// Fetcher retrieves the raw events of a date range.
type Fetcher interface {
	Fetch(ctx context.Context, r mixpanel.DateRange) mixpanel.FetchResult
}

// ObjectStore receives the written file after a successful run.
type ObjectStore interface {
	Upload(ctx context.Context, localPath, name string) (string, error)
}

// Summary describes one export run.
type Summary struct {
	RunID      string
	Range      mixpanel.DateRange
	Events     int
	Columns    []string
	Written    bool
	OutputPath string
	ObjectKey  string
	Duration   time.Duration
}

// Exporter runs fetch -> project -> write for one date range.
type Exporter struct {
	fetcher    Fetcher
	projector  *Projector
	writer     *CSVWriter
	store      ObjectStore
	outputPath string
	logger     *zap.Logger
}

// NewExporter creates a new exporter writing to outputPath
func NewExporter(fetcher Fetcher, projector *Projector, writer *CSVWriter, outputPath string, logger *zap.Logger) *Exporter {
	return &Exporter{
		fetcher:    fetcher,
		projector:  projector,
		writer:     writer,
		outputPath: outputPath,
		logger:     logger,
	}
}

// WithObjectStore uploads every written file to store.
func (e *Exporter) WithObjectStore(store ObjectStore) *Exporter {
	e.store = store
	return e
}

// ObjectName is the name a run's file is uploaded under.
func ObjectName(r mixpanel.DateRange) string {
	return fmt.Sprintf("mixpanel_events_%s_%s.csv", r.FromParam(), r.ToParam())
}

// Run exports r. A failed fetch is not an error: it is logged and the run
// ends like an empty one, with Written false and nothing on disk. Decode,
// projection, write and upload failures are returned.
func (e *Exporter) Run(ctx context.Context, r mixpanel.DateRange) (*Summary, error) {
	if shared.RunID(ctx) == "" {
		ctx, _ = shared.NewRun(ctx)
	}
	start := time.Now()
	logger := observability.WithRun(ctx, e.logger)

	summary := &Summary{
		RunID:      shared.RunID(ctx),
		Range:      r,
		OutputPath: e.outputPath,
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	events, err := e.collect(ctx, r)
	if err != nil {
		return nil, err
	}
	summary.Events = len(events)

	if len(events) == 0 {
		logger.Warn("no data retrieved: the request failed or the range has no events",
			zap.String("range", r.String()))
		summary.Duration = time.Since(start)
		return summary, nil
	}
	logger.Info("events retrieved", zap.Int("events", len(events)))

	records := make([]Record, 0, len(events))
	for i, ev := range events {
		rec, err := e.projector.Project(ev)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		records = append(records, rec)
	}

	written, err := e.writer.Write(e.outputPath, records)
	if err != nil {
		return nil, err
	}
	summary.Written = written
	summary.Columns = Columns(records)

	if written && e.store != nil {
		key, err := e.store.Upload(ctx, e.outputPath, ObjectName(r))
		if err != nil {
			return nil, err
		}
		summary.ObjectKey = key
	}

	summary.Duration = time.Since(start)
	logger.Info("export complete",
		zap.String("path", e.outputPath),
		zap.Int("events", summary.Events),
		zap.Int("columns", len(summary.Columns)),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

// collect drains the fetch result into memory. Transport failures, before
// or during the stream, yield no events and no error. A cancelled ctx is
// returned as an error.
func (e *Exporter) collect(ctx context.Context, r mixpanel.DateRange) ([]mixpanel.Event, error) {
	switch res := e.fetcher.Fetch(ctx, r).(type) {
	case *mixpanel.FetchFailed:
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		return nil, nil

	case *mixpanel.Fetched:
		defer res.Stream.Close()

		var events []mixpanel.Event
		for res.Stream.Next() {
			events = append(events, res.Stream.Event())
		}

		err := res.Stream.Err()
		switch {
		case err == nil:
			return events, nil
		case ctx.Err() != nil:
			return nil, cancelled(ctx.Err())
		case errors.Is(err, services.ErrTransport):
			return nil, nil
		default:
			return nil, err
		}

	default:
		return nil, services.WrapInternal(fmt.Sprintf("unexpected fetch result %T", res), nil)
	}
}

func cancelled(err error) error {
	return fmt.Errorf("export cancelled: %w", err)
}
