package ingest

import (
	"context"
	"encoding/json"
	"os"

	"github.com/agenthands/scigraph/internal/core/extraction"
	"github.com/agenthands/scigraph/internal/core/model"
	"github.com/agenthands/scigraph/internal/core/stats"
	"github.com/agenthands/scigraph/internal/driver"
	"github.com/agenthands/scigraph/internal/platform/logger"
)

func ReadPublications(path string) ([]model.PublicationRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SourceReadError{Path: path, Err: err}
	}
	defer f.Close()
	var recs []model.PublicationRecord
	if err := json.NewDecoder(f).Decode(&recs); err != nil {
		return nil, &SourceReadError{Path: path, Err: err}
	}
	return recs, nil
}

// LoadPublicationNodes upserts one Publication per record with a DOI.
func LoadPublicationNodes(ctx context.Context, session driver.GraphDriver, path string, batchSize int, log *logger.Logger) (stats.RunStats, error) {
	if log == nil {
		log = logger.Nop()
	}
	recs, err := ReadPublications(path)
	if err != nil {
		return stats.New(), err
	}
	w := NewNodeWriter(session, batchSize, log)
	skipped := stats.New()
	for i, rec := range recs {
		out := extraction.Publication(rec)
		if !out.OK() {
			log.Warn("skipping publication", "index", i, "error", out.Err)
			skipped.Inc(stats.NodesSkipped)
			skipped.Inc(stats.Labeled(stats.NodesSkipped, string(model.LabelPublication)))
			continue
		}
		if err := w.Add(ctx, out.Node); err != nil {
			return w.Stats(), err
		}
	}
	err = w.Flush(ctx)
	res := w.Stats()
	res.Merge(skipped)
	res.Add(stats.PublicationsLoaded, len(recs))
	log.Info("publication nodes loaded", res.Fields()...)
	return res, err
}

// LoadPublicationEdges merges USES_DATASET edges. Run it after dataset and
// publication nodes exist.
func LoadPublicationEdges(ctx context.Context, session driver.GraphDriver, path string, batchSize int, log *logger.Logger) (stats.RunStats, error) {
	if log == nil {
		log = logger.Nop()
	}
	recs, err := ReadPublications(path)
	if err != nil {
		return stats.New(), err
	}
	w := NewEdgeWriter(session, batchSize, log)
	for _, rec := range recs {
		for _, e := range extraction.PublicationEdges(rec) {
			if err := w.Add(ctx, e); err != nil {
				return w.Stats(), err
			}
		}
	}
	err = w.Flush(ctx)
	res := w.Stats()
	log.Info("publication dataset edges merged", res.Fields()...)
	return res, err
}
