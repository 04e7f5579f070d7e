package citation

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agenthands/scigraph/internal/core/stats"
	"github.com/agenthands/scigraph/internal/driver"
)

// ChunkFunc processes one chunk on a session it does not share. Record
// level problems are counted in the returned stats; a returned error means
// the chunk itself could not be processed.
type ChunkFunc func(ctx context.Context, session driver.GraphDriver, chunk []Entry) (stats.RunStats, error)

// Pool runs fn over every chunk and returns only once all of them have
// finished. Result order is not significant.
type Pool interface {
	Run(ctx context.Context, chunks [][]Entry, fn ChunkFunc) (stats.RunStats, error)
}

// DefaultWorkers is half the available parallelism, at least one.
func DefaultWorkers() int {
	return max(1, runtime.GOMAXPROCS(0)/2)
}

// ParallelPool runs chunks on at most Workers goroutines. Each task opens
// and closes its own session. The first failing or panicking task cancels
// the rest.
type ParallelPool struct {
	Connector driver.Connector
	Workers   int
}

func (p *ParallelPool) Run(ctx context.Context, chunks [][]Entry, fn ChunkFunc) (stats.RunStats, error) {
	workers := p.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	total := stats.New()
	for i, chunk := range chunks {
		g.Go(func() error {
			part, err := runChunk(gctx, p.Connector, i, chunk, fn)
			if err != nil {
				return err
			}
			mu.Lock()
			total.Merge(part)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return total, err
}

// ChunkError is the failure of the chunk at Index.
type ChunkError struct {
	Index int
	Err   error
}

func (e *ChunkError) Error() string { return e.Err.Error() }

func (e *ChunkError) Unwrap() error { return e.Err }

// ChunkErrors lists every chunk a pool could not complete. The other chunks
// finished normally.
type ChunkErrors []*ChunkError

func (e ChunkErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, c := range e {
		msgs = append(msgs, c.Error())
	}
	return strings.Join(msgs, "\n")
}

func (e ChunkErrors) Unwrap() []error {
	errs := make([]error, 0, len(e))
	for _, c := range e {
		errs = append(errs, c)
	}
	return errs
}

// Failed reports whether the chunk at index is listed.
func (e ChunkErrors) Failed(index int) bool {
	for _, c := range e {
		if c.Index == index {
			return true
		}
	}
	return false
}

// SequentialPool runs chunks one after another on the calling goroutine.
// A failing chunk does not stop the others; failures are returned as
// ChunkErrors.
type SequentialPool struct {
	Connector driver.Connector
}

func (p *SequentialPool) Run(ctx context.Context, chunks [][]Entry, fn ChunkFunc) (stats.RunStats, error) {
	total := stats.New()
	var failed ChunkErrors
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		part, err := runChunk(ctx, p.Connector, i, chunk, fn)
		if err != nil {
			failed = append(failed, &ChunkError{Index: i, Err: err})
			continue
		}
		total.Merge(part)
	}
	if len(failed) > 0 {
		return total, failed
	}
	return total, nil
}

func runChunk(ctx context.Context, connector driver.Connector, index int, chunk []Entry, fn ChunkFunc) (part stats.RunStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chunk %d panicked: %v", index, r)
		}
	}()
	session, err := connector.Connect(ctx)
	if err != nil {
		return stats.RunStats{}, fmt.Errorf("chunk %d: connect: %w", index, err)
	}
	defer session.Close(context.WithoutCancel(ctx))

	part, err = fn(ctx, session, chunk)
	if err != nil {
		return part, fmt.Errorf("chunk %d: %w", index, err)
	}
	return part, nil
}
