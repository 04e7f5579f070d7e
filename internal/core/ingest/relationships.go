package ingest

import (
	"context"

	"github.com/agenthands/scigraph/internal/core/model"
	"github.com/agenthands/scigraph/internal/core/stats"
	"github.com/agenthands/scigraph/internal/driver"
	"github.com/agenthands/scigraph/internal/platform/logger"
)

// EdgeWriter buffers relationship candidates and merges them in batches.
// Node writers passed as dependencies are flushed before every edge batch
// so endpoints written through them exist first.
type EdgeWriter struct {
	session   driver.GraphDriver
	batchSize int
	log       *logger.Logger
	deps      []*NodeWriter
	buf       []model.Edge
	stats     stats.RunStats
}

func NewEdgeWriter(session driver.GraphDriver, batchSize int, log *logger.Logger, deps ...*NodeWriter) *EdgeWriter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EdgeWriter{
		session:   session,
		batchSize: batchSize,
		log:       log,
		deps:      deps,
		buf:       make([]model.Edge, 0, batchSize),
		stats:     stats.New(),
	}
}

func (w *EdgeWriter) Add(ctx context.Context, e model.Edge) error {
	w.buf = append(w.buf, e)
	if len(w.buf) >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

func (w *EdgeWriter) Flush(ctx context.Context) error {
	for _, dep := range w.deps {
		if err := dep.Flush(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(w.buf) == 0 {
		return nil
	}
	batch := w.buf
	w.buf = make([]model.Edge, 0, w.batchSize)

	missing, err := w.session.MergeEdges(ctx, batch)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Error("edge batch failed", "size", len(batch), "error", err)
		for _, e := range batch {
			w.stats.Inc(stats.EdgesFailed)
			w.stats.Inc(stats.Labeled(stats.EdgesFailed, string(e.Type)))
		}
		return nil
	}

	missed := make(map[model.Edge]int, len(missing))
	for _, e := range missing {
		missed[e]++
		w.log.Warn("skipping edge", "error", &driver.MissingEndpointError{Edge: e})
		w.stats.Inc(stats.EdgesMissingEndpoint)
		w.stats.Inc(stats.Labeled(stats.EdgesMissingEndpoint, string(e.Type)))
	}
	for _, e := range batch {
		if missed[e] > 0 {
			missed[e]--
			continue
		}
		w.stats.Inc(stats.EdgesMerged)
		w.stats.Inc(stats.Labeled(stats.EdgesMerged, string(e.Type)))
	}
	return nil
}

func (w *EdgeWriter) Stats() stats.RunStats {
	out := stats.New()
	out.Merge(w.stats)
	return out
}

// Ingest merges edges in batches and flushes the remainder.
func Ingest(ctx context.Context, session driver.GraphDriver, edges []model.Edge, batchSize int, log *logger.Logger) (stats.RunStats, error) {
	w := NewEdgeWriter(session, batchSize, log)
	for _, e := range edges {
		if err := w.Add(ctx, e); err != nil {
			return w.Stats(), err
		}
	}
	err := w.Flush(ctx)
	return w.Stats(), err
}
