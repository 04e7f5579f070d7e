package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agenthands/scigraph/internal/platform/logger"
	"github.com/agenthands/scigraph/internal/report"
)

// RunFunc performs one full ingestion run and returns its report.
type RunFunc func(ctx context.Context) *report.Report

type Server struct {
	Run      RunFunc
	Gatherer prometheus.Gatherer

	// ctx outlives requests; runs started over HTTP are bound to it.
	ctx     context.Context
	log     *logger.Logger
	mu      sync.Mutex
	running bool
	last    *report.Report
	wg      sync.WaitGroup
}

func NewServer(ctx context.Context, run RunFunc, gatherer prometheus.Gatherer, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		Run:      run,
		Gatherer: gatherer,
		ctx:      ctx,
		log:      log.With("component", "Server"),
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.Health)
	r.GET("/stats", s.Stats)
	r.POST("/runs", s.StartRun)
	if s.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func (s *Server) Health(c *gin.Context) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "running": running})
}

// Stats returns the report of the last finished run.
func (s *Server) Stats(c *gin.Context) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run has finished yet"})
		return
	}
	c.JSON(http.StatusOK, last)
}

// StartRun launches a run in the background. Only one run may be active.
func (s *Server) StartRun(c *gin.Context) {
	if s.Run == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "runs are disabled"})
		return
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress"})
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rep := s.Run(s.ctx)
		s.Record(rep)
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

// Record makes rep the report served by /stats.
func (s *Server) Record(rep *report.Report) {
	if rep == nil {
		return
	}
	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()
	s.log.Info("run recorded", "runId", rep.RunID, "error", rep.Error)
}

// Wait blocks until background runs have finished.
func (s *Server) Wait() {
	s.wg.Wait()
}
