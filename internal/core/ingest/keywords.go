package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agenthands/scigraph/internal/core/extraction"
	"github.com/agenthands/scigraph/internal/core/model"
	"github.com/agenthands/scigraph/internal/core/stats"
	"github.com/agenthands/scigraph/internal/driver"
	"github.com/agenthands/scigraph/internal/platform/logger"
)

const DefaultKeywordBatchSize = 1000

// KeywordColumns is the taxonomy hierarchy, broadest first.
var KeywordColumns = []string{
	"Topic",
	"Term",
	"Variable_Level_1",
	"Variable_Level_2",
	"Variable_Level_3",
	"Detailed_Variable",
}

// KeywordChain returns the non-empty levels of one taxonomy row. Empty
// levels are skipped, so the chain links each value to the nearest
// non-empty level above it.
func KeywordChain(row map[string]string) []string {
	var chain []string
	for _, col := range KeywordColumns {
		if v := strings.TrimSpace(row[col]); v != "" {
			chain = append(chain, v)
		}
	}
	return chain
}

// LoadKeywords reads the taxonomy CSV at path and writes a ScienceKeyword
// node per level value plus HAS_SUBCATEGORY between consecutive levels.
// An unreadable file is returned as *SourceReadError together with the
// counts written before the failure.
func LoadKeywords(ctx context.Context, session driver.GraphDriver, path string, batchSize int, log *logger.Logger) (stats.RunStats, error) {
	if batchSize <= 0 {
		batchSize = DefaultKeywordBatchSize
	}
	if log == nil {
		log = logger.Nop()
	}
	f, err := os.Open(path)
	if err != nil {
		return stats.New(), &SourceReadError{Path: path, Err: err}
	}
	defer f.Close()

	nodes := NewNodeWriter(session, batchSize, log)
	edges := NewEdgeWriter(session, batchSize, log, nodes)
	skipped := stats.New()
	collect := func() stats.RunStats {
		out := nodes.Stats()
		out.Merge(edges.Stats())
		out.Merge(skipped)
		return out
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	header, err := r.Read()
	if err != nil {
		return stats.New(), &SourceReadError{Path: path, Err: fmt.Errorf("read header: %w", err)}
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	rows := 0
	var readErr error
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = &SourceReadError{Path: path, Err: err}
			break
		}
		rows++
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		// An unusable term is skipped; its parent links to the next usable level.
		var parent *model.Endpoint
		for _, term := range KeywordChain(row) {
			out := extraction.KeywordNode(term)
			if !out.OK() {
				log.Warn("skipping keyword", "path", path, "row", rows, "error", out.Err)
				skipped.Inc(stats.NodesSkipped)
				skipped.Inc(stats.Labeled(stats.NodesSkipped, string(model.LabelScienceKeyword)))
				continue
			}
			if err := nodes.Add(ctx, out.Node); err != nil {
				return collect(), err
			}
			ep := out.Node.Endpoint()
			if parent != nil {
				if err := edges.Add(ctx, model.Edge{
					Type:   model.RelHasSubcategory,
					Source: *parent,
					Target: ep,
				}); err != nil {
					return collect(), err
				}
			}
			parent = &ep
		}
	}
	if err := edges.Flush(ctx); err != nil {
		return collect(), err
	}

	out := collect()
	out.Add(stats.KeywordRows, rows)
	log.Info("keyword taxonomy loaded", append([]interface{}{"path", path, "rows", rows}, out.Fields()...)...)
	return out, readErr
}
