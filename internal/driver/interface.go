package driver

import (
	"context"

	"github.com/agenthands/scigraph/internal/core/model"
)

// GraphDriver is one session against the graph store. A session is used by a
// single goroutine; workers that run concurrently each Connect their own.
type GraphDriver interface {
	DeclareUniqueConstraint(ctx context.Context, label model.Label, property string) error
	// UpsertNodes create-or-enriches every node in one write transaction.
	UpsertNodes(ctx context.Context, nodes []model.Node) error
	// MergeEdges merges every edge whose endpoints both exist, in one write
	// transaction, and returns the candidates that matched nothing.
	MergeEdges(ctx context.Context, edges []model.Edge) (missing []model.Edge, err error)
	NodeExists(ctx context.Context, label model.Label, globalID string) (bool, error)
	Publications(ctx context.Context) ([]model.PublicationAbstract, error)
	// KeywordByName matches ScienceKeyword.name case-insensitively.
	KeywordByName(ctx context.Context, name string) (globalID string, ok bool, err error)
	Close(ctx context.Context) error
}

// Connector opens independent sessions.
type Connector interface {
	Connect(ctx context.Context) (GraphDriver, error)
}
