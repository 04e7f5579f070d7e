package catalog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agenthands/scigraph/internal/core/stats"
	"github.com/agenthands/scigraph/internal/platform/logger"
)

const UnknownFrequency = "Unknown"

// frequencyWords are checked in this order; the first hit wins.
var frequencyWords = []string{"daily", "hourly", "monthly", "weekly"}

// DOIColumns are the accepted header names of the DOI list, compared
// case-insensitively.
var DOIColumns = []string{"DOI_NAME", "doi"}

func firstFrequency(text string) string {
	text = strings.ToLower(text)
	for _, w := range frequencyWords {
		if strings.Contains(text, w) {
			return w
		}
	}
	return UnknownFrequency
}

// Frequency infers the temporal frequency from the entry title, falling
// back to the abstract. conflict reports that both name a frequency and
// they differ.
func Frequency(umm map[string]any) (freq string, conflict bool) {
	title, _ := umm["EntryTitle"].(string)
	abstract, _ := umm["Abstract"].(string)
	fromTitle, fromAbstract := firstFrequency(title), firstFrequency(abstract)
	conflict = fromTitle != UnknownFrequency && fromAbstract != UnknownFrequency && fromTitle != fromAbstract
	if fromTitle != UnknownFrequency {
		return fromTitle, conflict
	}
	return fromAbstract, conflict
}

var unsafePath = strings.NewReplacer("/", "_", "\\", "_", "..", "_")

// FilePath is <dir>/<first data center>/<doi with slashes replaced>.json.
func FilePath(dir string, md Metadata) string {
	center := "Unknown"
	if centers, ok := md.UMM["DataCenters"].([]any); ok && len(centers) > 0 {
		if c, ok := centers[0].(map[string]any); ok {
			if name, _ := c["ShortName"].(string); strings.TrimSpace(name) != "" {
				center = name
			}
		}
	}
	return filepath.Join(dir, unsafePath.Replace(center), unsafePath.Replace(md.DOI)+".json")
}

type Harvester struct {
	Source      Source
	OutputDir   string
	Concurrency int
	log         *logger.Logger
}

func NewHarvester(source Source, outputDir string, concurrency int, log *logger.Logger) *Harvester {
	if log == nil {
		log = logger.Nop()
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Harvester{
		Source:      source,
		OutputDir:   outputDir,
		Concurrency: concurrency,
		log:         log.With("component", "Harvester"),
	}
}

// Run fetches every DOI with bounded concurrency and writes one document
// per collection. Per-DOI failures are counted; only cancellation and
// write errors end the run.
func (h *Harvester) Run(ctx context.Context, dois []string) (stats.RunStats, error) {
	var (
		mu  sync.Mutex
		res = stats.New()
	)
	inc := func(keys ...string) {
		mu.Lock()
		defer mu.Unlock()
		for _, k := range keys {
			res.Inc(k)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.Concurrency)
	for _, doi := range dois {
		g.Go(func() error {
			md, err := h.Source.Fetch(gctx, doi)
			switch {
			case gctx.Err() != nil:
				return gctx.Err()
			case errors.Is(err, ErrMissingCMRID):
				h.log.Warn("metadata has no CMR id", "doi", doi)
				inc(stats.HarvestMissingCMRID, stats.HarvestFailed)
				return nil
			case err != nil:
				h.log.Error("metadata fetch failed", "doi", doi, "error", err)
				inc(stats.HarvestFailed)
				return nil
			}

			freq, conflict := Frequency(md.UMM)
			if conflict {
				h.log.Warn("frequency differs between title and abstract", "doi", doi, "chosen", freq)
				inc(stats.HarvestFrequencyConflict)
			}
			if freq == UnknownFrequency {
				inc(stats.HarvestUnknownFrequency)
			}
			md.UMM["Frequency"] = freq

			path, err := h.write(md)
			if err != nil {
				return err
			}
			h.log.Debug("metadata saved", "doi", doi, "path", path)
			inc(stats.HarvestFetched)
			return nil
		})
	}
	err := g.Wait()
	h.log.Info("harvest finished", res.Fields()...)
	return res, err
}

func (h *Harvester) write(md Metadata) (string, error) {
	path := FilePath(h.OutputDir, md)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	data, err := json.Marshal(md.UMM)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", md.DOI, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ReadDOIs reads the DOI column of a CSV list, skipping blank cells.
func ReadDOIs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeDOIs(f)
}

func DecodeDOIs(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		for _, want := range DOIColumns {
			if strings.EqualFold(name, want) {
				col = i
			}
		}
		if col >= 0 {
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("no DOI column in header %v", header)
	}

	var dois []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return dois, nil
		}
		if err != nil {
			return dois, err
		}
		if col < len(rec) {
			if doi := strings.TrimSpace(rec[col]); doi != "" {
				dois = append(dois, doi)
			}
		}
	}
}
