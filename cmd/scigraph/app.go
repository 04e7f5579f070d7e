package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/agenthands/scigraph/internal/config"
	"github.com/agenthands/scigraph/internal/core/citation"
	"github.com/agenthands/scigraph/internal/core/ingest"
	"github.com/agenthands/scigraph/internal/core/research"
	"github.com/agenthands/scigraph/internal/core/stats"
	"github.com/agenthands/scigraph/internal/driver"
	"github.com/agenthands/scigraph/internal/llm"
	"github.com/agenthands/scigraph/internal/metrics"
	"github.com/agenthands/scigraph/internal/platform/logger"
	"github.com/agenthands/scigraph/internal/report"
)

// app carries what every subcommand shares: config, logger, the graph
// connection and the metrics registry.
type app struct {
	configPath string
	dryRun     bool

	cfg      *config.Config
	log      *logger.Logger
	registry *prometheus.Registry
	recorder *metrics.Recorder
	graph    *driver.Neo4jDriver
	memory   *driver.MemoryStore
	classify *llm.PromptClassifier
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode, cfg.Log.File)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.cfg = cfg
	a.log = log
	a.registry = prometheus.NewRegistry()
	a.recorder = metrics.NewRecorder(a.registry)
	return nil
}

func (a *app) teardown() {
	if a.classify != nil {
		if err := a.classify.Close(); err != nil {
			a.log.Warn("failed to close classifier client", "error", err)
		}
	}
	if a.graph != nil {
		_ = a.graph.Close(context.Background())
	}
	if a.log != nil {
		a.log.Sync()
	}
}

// connector opens the configured store once. --dry-run swaps in an
// in-memory graph.
func (a *app) connector(ctx context.Context) (driver.Connector, error) {
	if a.dryRun {
		if a.memory == nil {
			a.log.Info("dry run: writing to an in-memory graph")
			a.memory = driver.NewMemoryStore()
		}
		return a.memory, nil
	}
	if a.graph != nil {
		return a.graph, nil
	}
	db := a.cfg.Database
	g, err := driver.NewNeo4jDriver(ctx, driver.Options{
		URI:            db.URI,
		Username:       db.User,
		Password:       db.Password,
		Database:       db.Database,
		Dialect:        driver.Dialect(strings.ToLower(db.Dialect)),
		MaxPoolSize:    db.MaxPoolSize,
		ConnectTimeout: time.Duration(db.TimeoutSeconds) * time.Second,
	}, a.log)
	if err != nil {
		return nil, err
	}
	a.graph = g
	return g, nil
}

func (a *app) pipeline(ctx context.Context) (*ingest.Pipeline, error) {
	conn, err := a.connector(ctx)
	if err != nil {
		return nil, err
	}
	paths := a.cfg.Paths
	p := ingest.NewPipeline(conn, ingest.Sources{
		DatasetDir:       paths.DatasetDir,
		KeywordsCSV:      paths.KeywordsCSV,
		PublicationsJSON: paths.PublicationsJSON,
		CitationsJSON:    paths.CitationsJSON,
	}, a.log)
	p.BatchSize = a.cfg.Ingest.BatchSize
	p.KeywordBatchSize = a.cfg.Ingest.KeywordBatchSize
	p.Citations = citation.NewIngestor(conn, citation.Options{
		ChunkSize: a.cfg.Ingest.CitationChunkSize,
		Workers:   a.cfg.Ingest.Workers,
	}, a.log)
	p.OnStep = a.recorder.ObserveStep

	if a.cfg.Classifier.Enabled() {
		if a.classify == nil {
			cls, err := llm.NewClassifier(ctx, a.cfg.Classifier)
			if err != nil {
				return nil, fmt.Errorf("init classifier: %w", err)
			}
			a.classify = cls
		}
		p.Linker = research.NewLinker(conn, a.classify, a.cfg.Classifier.Concurrency, a.log)
	}
	return p, nil
}

// record finishes rep, stores it through the configured sink and logs the
// outcome. Sink failures are logged only.
func (a *app) record(ctx context.Context, rep *report.Report, res stats.RunStats, err error) {
	rep.Finish(res, err)
	a.recorder.RunFinished(err)
	sink, serr := report.NewSink(ctx, a.cfg.Report)
	if serr == nil {
		var loc string
		loc, serr = sink.Write(context.WithoutCancel(ctx), rep)
		if serr == nil && loc != "" {
			a.log.Info("run report written", "location", loc)
		}
	}
	if serr != nil {
		a.log.Error("failed to write run report", "error", serr)
	}
	fields := append([]interface{}{"command", rep.Command, "runId", rep.RunID, "duration", rep.Duration().String()}, res.Fields()...)
	if err != nil {
		a.log.Error("run failed", append(fields, "error", err)...)
		return
	}
	a.log.Info("run finished", fields...)
}

// execute runs fn as one reported command.
func (a *app) execute(ctx context.Context, command string, fn func(ctx context.Context, p *ingest.Pipeline) (stats.RunStats, error)) error {
	p, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	rep := report.New(command)
	a.recorder.RunStarted()
	res, err := fn(ctx, p)
	a.record(ctx, rep, res, err)
	return err
}

func steps(names ...string) func(ctx context.Context, p *ingest.Pipeline) (stats.RunStats, error) {
	return func(ctx context.Context, p *ingest.Pipeline) (stats.RunStats, error) {
		total := stats.New()
		for _, name := range names {
			res, err := p.RunStep(ctx, name)
			total.Merge(res)
			if err != nil {
				return total, fmt.Errorf("step %s: %w", name, err)
			}
		}
		return total, nil
	}
}

func ginMode(mode string) string {
	switch mode {
	case gin.DebugMode, gin.TestMode:
		return mode
	default:
		return gin.ReleaseMode
	}
}
