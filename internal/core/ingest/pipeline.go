package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agenthands/scigraph/internal/core/citation"
	"github.com/agenthands/scigraph/internal/core/extraction"
	"github.com/agenthands/scigraph/internal/core/model"
	"github.com/agenthands/scigraph/internal/core/research"
	"github.com/agenthands/scigraph/internal/core/scan"
	"github.com/agenthands/scigraph/internal/core/stats"
	"github.com/agenthands/scigraph/internal/driver"
	"github.com/agenthands/scigraph/internal/platform/logger"
)

const (
	StepConstraints      = "constraints"
	StepKeywords         = "keywords"
	StepDatasetNodes     = "dataset-nodes"
	StepPublicationNodes = "publication-nodes"
	StepDatasetEdges     = "dataset-edges"
	StepPublicationEdges = "publication-edges"
	StepCitations        = "citations"
	StepResearch         = "research"
)

// Steps is the order Run executes. Node steps precede the edge steps that
// reference them.
var Steps = []string{
	StepConstraints,
	StepKeywords,
	StepDatasetNodes,
	StepPublicationNodes,
	StepDatasetEdges,
	StepPublicationEdges,
	StepCitations,
	StepResearch,
}

// Sources locates the input files. Empty entries disable their steps.
type Sources struct {
	DatasetDir       string
	KeywordsCSV      string
	PublicationsJSON string
	CitationsJSON    string
}

type Pipeline struct {
	Connector        driver.Connector
	Sources          Sources
	BatchSize        int
	KeywordBatchSize int
	Citations        *citation.Ingestor
	// Linker is nil when no classifier is configured.
	Linker *research.Linker
	// OnStep, if set, is called after each step with its result.
	OnStep func(step string, res stats.RunStats, err error, elapsed time.Duration)

	log *logger.Logger
}

func NewPipeline(connector driver.Connector, sources Sources, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		Connector:        connector,
		Sources:          sources,
		BatchSize:        DefaultBatchSize,
		KeywordBatchSize: DefaultKeywordBatchSize,
		Citations:        citation.NewIngestor(connector, citation.Options{}, log),
		log:              log.With("component", "Pipeline"),
	}
}

// Run executes every step in order and merges their counters. An
// unreadable source file is logged and counted as FilesFailed; any other
// step error stops the run.
func (p *Pipeline) Run(ctx context.Context) (stats.RunStats, error) {
	total := stats.New()
	for _, step := range Steps {
		res, err := p.RunStep(ctx, step)
		total.Merge(res)
		if err == nil {
			continue
		}
		var readErr *SourceReadError
		if errors.As(err, &readErr) && ctx.Err() == nil {
			p.log.Error("source unreadable, continuing", "step", step, "path", readErr.Path, "error", readErr.Err)
			total.Inc(stats.FilesFailed)
			continue
		}
		return total, fmt.Errorf("step %s: %w", step, err)
	}
	p.log.Info("pipeline finished", total.Fields()...)
	return total, nil
}

// RunStep executes one named step.
func (p *Pipeline) RunStep(ctx context.Context, step string) (stats.RunStats, error) {
	var (
		res   stats.RunStats
		err   error
		start = time.Now()
	)
	switch step {
	case StepConstraints:
		res, err = p.DeclareConstraints(ctx)
	case StepKeywords:
		res, err = p.Keywords(ctx)
	case StepDatasetNodes:
		res, err = p.DatasetNodes(ctx)
	case StepPublicationNodes:
		res, err = p.PublicationNodes(ctx)
	case StepDatasetEdges:
		res, err = p.DatasetEdges(ctx)
	case StepPublicationEdges:
		res, err = p.PublicationEdges(ctx)
	case StepCitations:
		res, err = p.CitationGraph(ctx)
	case StepResearch:
		res, err = p.Research(ctx)
	default:
		return stats.New(), fmt.Errorf("unknown step %q", step)
	}
	if p.OnStep != nil {
		p.OnStep(step, res, err, time.Since(start))
	}
	return res, err
}

func (p *Pipeline) withSession(ctx context.Context, fn func(driver.GraphDriver) (stats.RunStats, error)) (stats.RunStats, error) {
	session, err := p.Connector.Connect(ctx)
	if err != nil {
		return stats.New(), fmt.Errorf("connect: %w", err)
	}
	defer session.Close(context.WithoutCancel(ctx))
	return fn(session)
}

func (p *Pipeline) disabled(step, source string) bool {
	if source != "" {
		return false
	}
	p.log.Info("no source configured, skipping", "step", step)
	return true
}

// DeclareConstraints declares the globalId uniqueness constraint for every
// label. A failed declaration is logged and does not stop ingestion.
func (p *Pipeline) DeclareConstraints(ctx context.Context) (stats.RunStats, error) {
	return p.withSession(ctx, func(s driver.GraphDriver) (stats.RunStats, error) {
		for _, label := range model.Labels() {
			if err := s.DeclareUniqueConstraint(ctx, label, model.KeyProperty); err != nil {
				if ctx.Err() != nil {
					return stats.New(), ctx.Err()
				}
				p.log.Warn("constraint not declared", "label", label, "error", err)
			}
		}
		return stats.New(), nil
	})
}

func (p *Pipeline) Keywords(ctx context.Context) (stats.RunStats, error) {
	if p.disabled(StepKeywords, p.Sources.KeywordsCSV) {
		return stats.New(), nil
	}
	return p.withSession(ctx, func(s driver.GraphDriver) (stats.RunStats, error) {
		return LoadKeywords(ctx, s, p.Sources.KeywordsCSV, p.KeywordBatchSize, p.log)
	})
}

// DatasetNodes upserts the nodes of every dataset document under the
// dataset directory. Unreadable documents are counted and skipped.
func (p *Pipeline) DatasetNodes(ctx context.Context) (stats.RunStats, error) {
	if p.disabled(StepDatasetNodes, p.Sources.DatasetDir) {
		return stats.New(), nil
	}
	return p.withSession(ctx, func(s driver.GraphDriver) (stats.RunStats, error) {
		w := NewNodeWriter(s, p.BatchSize, p.log)
		files := stats.New()
		collect := func() stats.RunStats {
			out := w.Stats()
			out.Merge(files)
			return out
		}
		for path, err := range scan.Scan(p.Sources.DatasetDir) {
			if err != nil {
				return collect(), err
			}
			files.Inc(stats.FilesScanned)
			doc, err := extraction.ReadDataset(path)
			if err != nil {
				p.log.Error("skipping document", "error", &SourceReadError{Path: path, Err: err})
				files.Inc(stats.FilesFailed)
				continue
			}
			for _, out := range extraction.Nodes(doc) {
				if !out.OK() {
					p.log.Warn("skipping record", "path", path, "error", out.Err)
					files.Inc(stats.NodesSkipped)
					files.Inc(stats.Labeled(stats.NodesSkipped, string(out.Node.Label)))
					continue
				}
				if err := w.Add(ctx, out.Node); err != nil {
					return collect(), err
				}
			}
		}
		err := w.Flush(ctx)
		res := collect()
		p.log.Info("dataset nodes upserted", res.Fields()...)
		return res, err
	})
}

// DatasetEdges rescans the dataset directory and merges the relationships
// of every document. Run it after DatasetNodes and Keywords.
func (p *Pipeline) DatasetEdges(ctx context.Context) (stats.RunStats, error) {
	if p.disabled(StepDatasetEdges, p.Sources.DatasetDir) {
		return stats.New(), nil
	}
	return p.withSession(ctx, func(s driver.GraphDriver) (stats.RunStats, error) {
		w := NewEdgeWriter(s, p.BatchSize, p.log)
		for path, err := range scan.Scan(p.Sources.DatasetDir) {
			if err != nil {
				return w.Stats(), err
			}
			doc, err := extraction.ReadDataset(path)
			if err != nil {
				// Already counted by the node step.
				p.log.Debug("skipping document", "path", path, "error", err)
				continue
			}
			for _, e := range extraction.Edges(doc) {
				if err := w.Add(ctx, e); err != nil {
					return w.Stats(), err
				}
			}
		}
		err := w.Flush(ctx)
		res := w.Stats()
		p.log.Info("dataset edges merged", res.Fields()...)
		return res, err
	})
}

func (p *Pipeline) PublicationNodes(ctx context.Context) (stats.RunStats, error) {
	if p.disabled(StepPublicationNodes, p.Sources.PublicationsJSON) {
		return stats.New(), nil
	}
	return p.withSession(ctx, func(s driver.GraphDriver) (stats.RunStats, error) {
		return LoadPublicationNodes(ctx, s, p.Sources.PublicationsJSON, p.BatchSize, p.log)
	})
}

func (p *Pipeline) PublicationEdges(ctx context.Context) (stats.RunStats, error) {
	if p.disabled(StepPublicationEdges, p.Sources.PublicationsJSON) {
		return stats.New(), nil
	}
	return p.withSession(ctx, func(s driver.GraphDriver) (stats.RunStats, error) {
		return LoadPublicationEdges(ctx, s, p.Sources.PublicationsJSON, p.BatchSize, p.log)
	})
}

// CitationGraph runs the two-phase citation ingester over the citation
// file. The ingester opens its own sessions.
func (p *Pipeline) CitationGraph(ctx context.Context) (stats.RunStats, error) {
	if p.disabled(StepCitations, p.Sources.CitationsJSON) {
		return stats.New(), nil
	}
	entries, err := citation.LoadCitations(p.Sources.CitationsJSON)
	if err != nil {
		return stats.New(), &SourceReadError{Path: p.Sources.CitationsJSON, Err: err}
	}
	return p.Citations.Run(ctx, entries)
}

func (p *Pipeline) Research(ctx context.Context) (stats.RunStats, error) {
	if p.Linker == nil {
		p.log.Info("no classifier configured, skipping", "step", StepResearch)
		return stats.New(), nil
	}
	return p.Linker.Run(ctx)
}
