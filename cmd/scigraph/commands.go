package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/agenthands/scigraph/internal/catalog"
	"github.com/agenthands/scigraph/internal/core/ingest"
	"github.com/agenthands/scigraph/internal/core/stats"
	"github.com/agenthands/scigraph/internal/report"
	"github.com/agenthands/scigraph/internal/server"
)

func runCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every ingestion step in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.execute(cmd.Context(), "run", func(ctx context.Context, p *ingest.Pipeline) (stats.RunStats, error) {
				return p.Run(ctx)
			})
		},
	}
}

func constraintsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "constraints",
		Short: "Declare the globalId uniqueness constraint for every label",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.execute(cmd.Context(), "constraints", steps(ingest.StepConstraints))
		},
	}
}

func keywordsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keywords",
		Short: "Load the science keyword taxonomy CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.execute(cmd.Context(), "keywords", steps(ingest.StepKeywords))
		},
	}
}

func datasetsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "Load dataset documents: all nodes first, then their relationships",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.execute(cmd.Context(), "datasets", steps(ingest.StepDatasetNodes, ingest.StepDatasetEdges))
		},
	}
}

func publicationsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publications",
		Short: "Load publications and their USES_DATASET relationships",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.execute(cmd.Context(), "publications", steps(ingest.StepPublicationNodes, ingest.StepPublicationEdges))
		},
	}
}

func citationsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "citations",
		Short: "Load the citation graph with the parallel two-phase ingester",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
				a.cfg.Ingest.Workers = workers
			}
			if size, _ := cmd.Flags().GetInt("chunk-size"); size > 0 {
				a.cfg.Ingest.CitationChunkSize = size
			}
			return a.execute(cmd.Context(), "citations", steps(ingest.StepCitations))
		},
	}
	cmd.Flags().Int("workers", 0, "Worker goroutines (default: config, then GOMAXPROCS/2)")
	cmd.Flags().Int("chunk-size", 0, "Citing entries per chunk (default: config)")
	return cmd
}

func researchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "research",
		Short: "Classify publication abstracts and link applied research areas",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Classifier.Enabled() {
				return errors.New("no classifier provider configured")
			}
			return a.execute(cmd.Context(), "research", steps(ingest.StepResearch))
		},
	}
}

func harvestCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "harvest",
		Short: "Download collection metadata from CMR for every DOI in the DOI list",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if a.cfg.Paths.DOIsCSV == "" {
				return errors.New("paths.dois_csv is not set")
			}
			outDir := a.cfg.Catalog.OutputDir
			if outDir == "" {
				outDir = a.cfg.Paths.DatasetDir
			}
			if outDir == "" {
				return errors.New("neither catalog.output_dir nor paths.dataset_dir is set")
			}
			dois, err := catalog.ReadDOIs(a.cfg.Paths.DOIsCSV)
			if err != nil {
				return fmt.Errorf("read DOI list: %w", err)
			}

			cc := a.cfg.Catalog
			src := catalog.NewCMRSource(cc.BaseURL, time.Duration(cc.TimeoutSeconds)*time.Second, cc.RequestsPerSecond)
			h := catalog.NewHarvester(src, outDir, cc.Concurrency, a.log)

			rep := report.New("harvest")
			a.recorder.RunStarted()
			res, err := h.Run(ctx, dois)
			a.record(ctx, rep, res, err)
			return err
		},
	}
}

func serveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health, last-run stats and metrics; POST /runs starts a full run",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			gin.SetMode(ginMode(a.cfg.Server.GinMode))

			run := func(ctx context.Context) *report.Report {
				rep := report.New("run")
				a.recorder.RunStarted()
				p, err := a.pipeline(ctx)
				res := stats.New()
				if err == nil {
					res, err = p.Run(ctx)
				}
				a.record(ctx, rep, res, err)
				return rep
			}
			srv := server.NewServer(ctx, run, a.registry, a.log)
			httpSrv := &http.Server{Addr: a.cfg.Server.Addr, Handler: srv.SetupRouter()}

			errc := make(chan error, 1)
			go func() {
				a.log.Info("starting server", "addr", a.cfg.Server.Addr)
				errc <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			err := httpSrv.Shutdown(shutdownCtx)
			srv.Wait()
			return err
		},
	}
}
