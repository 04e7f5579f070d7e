// Package research links publications to the applied research area their
// abstract is classified into.
package research

import (
	"context"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agenthands/scigraph/internal/core/model"
	"github.com/agenthands/scigraph/internal/core/stats"
	"github.com/agenthands/scigraph/internal/driver"
	"github.com/agenthands/scigraph/internal/platform/logger"
)

// Classifier labels a text with one research area name.
type Classifier interface {
	Predict(ctx context.Context, text string) (string, error)
}

var markupReplacer = strings.NewReplacer("<SUB>", "", "</SUB>", "", "<SUP>", "", "</SUP>", "", "<", "", ">", "")

// CleanAbstract strips the sub/superscript markup found in catalog text.
func CleanAbstract(s string) string {
	return strings.TrimSpace(markupReplacer.Replace(s))
}

type Linker struct {
	Connector   driver.Connector
	Classifier  Classifier
	Concurrency int
	log         *logger.Logger
}

func NewLinker(connector driver.Connector, classifier Classifier, concurrency int, log *logger.Logger) *Linker {
	if log == nil {
		log = logger.Nop()
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Linker{
		Connector:   connector,
		Classifier:  classifier,
		Concurrency: concurrency,
		log:         log.With("component", "ResearchLinker"),
	}
}

type prediction struct {
	pub   model.PublicationAbstract
	label string
}

// Run classifies every publication abstract concurrently, then resolves
// and merges HAS_APPLIEDRESEARCHAREA edges on one session.
func (l *Linker) Run(ctx context.Context) (stats.RunStats, error) {
	res := stats.New()
	session, err := l.Connector.Connect(ctx)
	if err != nil {
		return res, err
	}
	defer session.Close(context.WithoutCancel(ctx))

	pubs, err := session.Publications(ctx)
	if err != nil {
		return res, err
	}

	var (
		mu    sync.Mutex
		preds []prediction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.Concurrency)
	for _, p := range pubs {
		abstract := CleanAbstract(p.Abstract)
		if abstract == "" {
			mu.Lock()
			res.Inc(stats.ResearchMissingAbstract)
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			label, err := l.Classifier.Predict(gctx, abstract)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				l.log.Warn("classification failed", "publication", p.GlobalID, "error", err)
				res.Inc(stats.ResearchClassifyFailed)
				return nil
			}
			preds = append(preds, prediction{pub: p, label: label})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	keywords := map[string]string{}
	var edges []model.Edge
	for _, pr := range preds {
		res.Inc(stats.ResearchProcessed)
		key := strings.ToLower(pr.label)
		id, cached := keywords[key]
		if !cached {
			found, ok, err := session.KeywordByName(ctx, pr.label)
			if err != nil {
				return res, err
			}
			if !ok {
				found = ""
			}
			keywords[key] = found
			id = found
		}
		if id == "" {
			l.log.Warn("research area has no keyword node", "area", pr.label, "publication", pr.pub.GlobalID)
			res.Inc(stats.ResearchMissingKeyword)
			continue
		}
		edges = append(edges, model.Edge{
			Type:   model.RelHasAppliedResearchArea,
			Source: model.ByGlobalID(model.LabelPublication, pr.pub.GlobalID),
			Target: model.ByGlobalID(model.LabelScienceKeyword, id),
		})
	}

	if len(edges) > 0 {
		missing, err := session.MergeEdges(ctx, edges)
		if err != nil {
			l.log.Error("research area edges failed", "count", len(edges), "error", err)
			res.Add(stats.EdgesFailed, len(edges))
		} else {
			res.Add(stats.EdgesMissingEndpoint, len(missing))
			res.Add(stats.ResearchLinked, len(edges)-len(missing))
		}
	}
	l.log.Info("research areas linked", res.Fields()...)
	return res, nil
}
