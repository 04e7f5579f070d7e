package ingest

import (
	"context"

	"github.com/agenthands/scigraph/internal/core/model"
	"github.com/agenthands/scigraph/internal/core/stats"
	"github.com/agenthands/scigraph/internal/driver"
	"github.com/agenthands/scigraph/internal/platform/logger"
)

const DefaultBatchSize = 100

// NodeWriter buffers nodes and upserts them batchSize at a time, one write
// transaction per batch. A failed batch is logged and counted; later
// batches still run.
type NodeWriter struct {
	session   driver.GraphDriver
	batchSize int
	log       *logger.Logger
	buf       []model.Node
	stats     stats.RunStats
}

func NewNodeWriter(session driver.GraphDriver, batchSize int, log *logger.Logger) *NodeWriter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &NodeWriter{
		session:   session,
		batchSize: batchSize,
		log:       log,
		buf:       make([]model.Node, 0, batchSize),
		stats:     stats.New(),
	}
}

// Add buffers n and flushes when the buffer is full. The only error
// returned is context cancellation.
func (w *NodeWriter) Add(ctx context.Context, n model.Node) error {
	w.buf = append(w.buf, n)
	if len(w.buf) >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

func (w *NodeWriter) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(w.buf) == 0 {
		return nil
	}
	batch := w.buf
	w.buf = make([]model.Node, 0, w.batchSize)

	if err := w.session.UpsertNodes(ctx, batch); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Error("node batch failed", "size", len(batch), "error", err)
		w.count(stats.NodesFailed, batch)
		return nil
	}
	w.count(stats.NodesUpserted, batch)
	return nil
}

func (w *NodeWriter) count(key string, batch []model.Node) {
	w.stats.Add(key, len(batch))
	for _, n := range batch {
		w.stats.Inc(stats.Labeled(key, string(n.Label)))
	}
}

// Stats returns the counters so far. Buffered nodes are not counted until
// flushed.
func (w *NodeWriter) Stats() stats.RunStats {
	out := stats.New()
	out.Merge(w.stats)
	return out
}

// Upsert writes nodes in batches and flushes the remainder.
func Upsert(ctx context.Context, session driver.GraphDriver, nodes []model.Node, batchSize int, log *logger.Logger) (stats.RunStats, error) {
	w := NewNodeWriter(session, batchSize, log)
	for _, n := range nodes {
		if err := w.Add(ctx, n); err != nil {
			return w.Stats(), err
		}
	}
	err := w.Flush(ctx)
	return w.Stats(), err
}
