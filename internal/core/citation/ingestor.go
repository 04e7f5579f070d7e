package citation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agenthands/scigraph/internal/core/extraction"
	"github.com/agenthands/scigraph/internal/core/identity"
	"github.com/agenthands/scigraph/internal/core/model"
	"github.com/agenthands/scigraph/internal/core/stats"
	"github.com/agenthands/scigraph/internal/driver"
	"github.com/agenthands/scigraph/internal/platform/logger"
)

const DefaultChunkSize = 50

type Phase string

const (
	PhaseChunking Phase = "chunking"
	PhaseNodes    Phase = "nodes"
	PhaseBarrier  Phase = "barrier"
	PhaseEdges    Phase = "edges"
	PhaseFallback Phase = "fallback"
	PhaseDone     Phase = "done"
)

var ErrWorkerPool = errors.New("worker pool failed")

// WorkerPoolError is an error that escaped a chunk during a pool phase.
type WorkerPoolError struct {
	Phase Phase
	Err   error
}

func (e *WorkerPoolError) Error() string {
	return fmt.Sprintf("%s phase: %v", e.Phase, e.Err)
}

func (e *WorkerPoolError) Unwrap() []error {
	return []error{ErrWorkerPool, e.Err}
}

type Options struct {
	ChunkSize int
	Workers   int
}

// Ingestor writes citation nodes for every chunk, waits for all of them,
// then writes CITES edges. If the pool fails in either phase the whole run
// is redone sequentially and only the sequential counts are reported.
type Ingestor struct {
	Pool      Pool
	Fallback  Pool
	ChunkSize int
	// OnPhase, if set, is called on every state transition.
	OnPhase func(Phase)

	log *logger.Logger
}

func NewIngestor(connector driver.Connector, opts Options, log *logger.Logger) *Ingestor {
	if log == nil {
		log = logger.Nop()
	}
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Ingestor{
		Pool:      &ParallelPool{Connector: connector, Workers: opts.Workers},
		Fallback:  &SequentialPool{Connector: connector},
		ChunkSize: size,
		log:       log.With("component", "CitationIngestor"),
	}
}

func (in *Ingestor) enter(p Phase) {
	in.log.Debug("citation phase", "phase", p)
	if in.OnPhase != nil {
		in.OnPhase(p)
	}
}

func (in *Ingestor) RunFile(ctx context.Context, path string) (stats.RunStats, error) {
	entries, err := LoadCitations(path)
	if err != nil {
		return stats.New(), fmt.Errorf("load citations %s: %w", path, err)
	}
	return in.Run(ctx, entries)
}

func (in *Ingestor) Run(ctx context.Context, entries []Entry) (stats.RunStats, error) {
	in.enter(PhaseChunking)
	chunks := Chunk(entries, in.ChunkSize)
	in.log.Info("citation ingest starting", "entries", len(entries), "chunks", len(chunks), "chunkSize", in.ChunkSize)

	res, err := in.twoPhase(ctx, in.Pool, chunks)
	if err != nil {
		if ctx.Err() != nil {
			return res, err
		}
		in.log.Error("worker pool failed, falling back to sequential processing", "error", err)
		in.enter(PhaseFallback)
		// Counts from the failed attempt are not carried over. The fallback
		// redoes every chunk from scratch.
		res, err = in.twoPhase(ctx, in.Fallback, chunks)
		res.Inc(stats.FallbackRuns)
	}
	res.Add(stats.CitationEntries, len(entries))
	res.Add(stats.CitationChunks, len(chunks))
	in.enter(PhaseDone)
	in.log.Info("citation ingest finished", res.Fields()...)
	return res, err
}

// twoPhase runs the node phase over every chunk, then the edge phase. When
// the pool reports which chunks failed (ChunkErrors), the edge phase still
// runs over the chunks whose nodes were written; any other pool error ends
// the run before edges.
func (in *Ingestor) twoPhase(ctx context.Context, pool Pool, chunks [][]Entry) (stats.RunStats, error) {
	in.enter(PhaseNodes)
	res, err := pool.Run(ctx, chunks, NodeChunk(in.log))
	var nodeErr error
	if err != nil {
		var failed ChunkErrors
		if ctx.Err() != nil || !errors.As(err, &failed) {
			return res, &WorkerPoolError{Phase: PhaseNodes, Err: err}
		}
		nodeErr = &WorkerPoolError{Phase: PhaseNodes, Err: err}
		kept := make([][]Entry, 0, len(chunks))
		for i, c := range chunks {
			if !failed.Failed(i) {
				kept = append(kept, c)
			}
		}
		in.log.Warn("node phase failed for some chunks, skipping their edges", "failed", len(failed), "remaining", len(kept))
		chunks = kept
	}
	// Run has returned, so every node chunk has completed.
	in.enter(PhaseBarrier)

	in.enter(PhaseEdges)
	edges, err := pool.Run(ctx, chunks, EdgeChunk(in.log))
	res.Merge(edges)
	if err != nil {
		return res, errors.Join(nodeErr, &WorkerPoolError{Phase: PhaseEdges, Err: err})
	}
	return res, nodeErr
}

// ensure writes n only when it is absent and reports whether it wrote it.
// Existing publications are left as they are.
func ensure(ctx context.Context, session driver.GraphDriver, n model.Node) (bool, error) {
	exists, err := session.NodeExists(ctx, n.Label, n.GlobalID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := session.UpsertNodes(ctx, []model.Node{n}); err != nil {
		return false, err
	}
	return true, nil
}

// NodeChunk writes a placeholder Publication for every citing DOI and a
// full Publication for every cited record.
func NodeChunk(log *logger.Logger) ChunkFunc {
	return func(ctx context.Context, session driver.GraphDriver, chunk []Entry) (stats.RunStats, error) {
		res := stats.New()
		for _, entry := range chunk {
			if entry.Err != nil {
				log.Warn("skipping malformed citation entry", "error", entry.Err)
				res.Inc(stats.RecordsFailed)
				continue
			}
			citing := extraction.PlaceholderPublication(entry.CitingDOI)
			if !citing.OK() {
				log.Warn("skipping citation entry", "doi", entry.CitingDOI, "error", citing.Err)
				res.Inc(stats.RecordsFailed)
				continue
			}
			created, err := ensure(ctx, session, citing.Node)
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				log.Error("failed to write citing publication", "doi", entry.CitingDOI, "error", err)
				res.Inc(stats.RecordsFailed)
				continue
			}
			if created {
				res.Inc(stats.CitingCreated)
			} else {
				res.Inc(stats.CitingExisted)
			}

			for _, c := range entry.Cited {
				cited := extraction.CitedPublication(c)
				if !cited.OK() {
					log.Debug("skipping cited publication", "citing", entry.CitingDOI, "error", cited.Err)
					res.Inc(stats.Labeled(stats.NodesSkipped, string(model.LabelPublication)))
					continue
				}
				created, err := ensure(ctx, session, cited.Node)
				if err != nil {
					if ctx.Err() != nil {
						return res, ctx.Err()
					}
					log.Error("failed to write cited publication", "doi", c.DOI, "error", err)
					res.Inc(stats.RecordsFailed)
					continue
				}
				if created {
					res.Inc(stats.CitedCreated)
				} else {
					res.Inc(stats.CitedExisted)
				}
			}
		}
		return res, nil
	}
}

// EdgeChunk merges (cited)-[:CITES]->(citing) for every pair in the chunk.
// The merge itself re-checks both endpoints; a pair whose nodes are missing
// is counted as not found.
func EdgeChunk(log *logger.Logger) ChunkFunc {
	return func(ctx context.Context, session driver.GraphDriver, chunk []Entry) (stats.RunStats, error) {
		res := stats.New()
		for _, entry := range chunk {
			if entry.Err != nil {
				continue
			}
			citingDOI := strings.TrimSpace(entry.CitingDOI)
			if citingDOI == "" {
				continue
			}
			citingID, err := identity.Resolve(citingDOI)
			if err != nil {
				continue
			}
			citing := model.ByGlobalID(model.LabelPublication, citingID.GlobalID)

			var edges []model.Edge
			for _, c := range entry.Cited {
				doi := strings.TrimSpace(c.DOI)
				if doi == "" {
					continue
				}
				citedID, err := identity.Resolve(doi)
				if err != nil {
					continue
				}
				edges = append(edges, model.Edge{
					Type:   model.RelCites,
					Source: model.ByGlobalID(model.LabelPublication, citedID.GlobalID),
					Target: citing,
				})
			}
			if len(edges) == 0 {
				continue
			}

			missing, err := session.MergeEdges(ctx, edges)
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				log.Error("failed to merge citations", "doi", entry.CitingDOI, "count", len(edges), "error", err)
				res.Add(stats.EdgesFailed, len(edges))
				continue
			}
			for _, e := range missing {
				log.Warn("cited publication not found", "error", &driver.MissingEndpointError{Edge: e})
			}
			res.Add(stats.CitedNotFound, len(missing))
			res.Add(stats.CitesMerged, len(edges)-len(missing))
		}
		return res, nil
	}
}
