package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/scigraph/internal/core/model"
	"github.com/agenthands/scigraph/internal/platform/logger"
)

type Options struct {
	URI            string
	Username       string
	Password       string
	Database       string
	Dialect        Dialect
	MaxPoolSize    int
	ConnectTimeout time.Duration
}

// Neo4jDriver owns the Bolt connection pool. It speaks to Neo4j and to
// Memgraph; only constraint DDL differs between the two.
type Neo4jDriver struct {
	Driver   neo4j.DriverWithContext
	Database string
	Dialect  Dialect
	log      *logger.Logger
}

func NewNeo4jDriver(ctx context.Context, opts Options, log *logger.Logger) (*Neo4jDriver, error) {
	if log == nil {
		log = logger.Nop()
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""), func(cfg *neo4j.Config) {
		if opts.MaxPoolSize > 0 {
			cfg.MaxConnectionPoolSize = opts.MaxPoolSize
		}
		cfg.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("init driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify connectivity to %s: %w", opts.URI, err)
	}

	dialect := opts.Dialect
	if dialect == "" {
		dialect = DialectNeo4j
	}
	log.Info("connected to graph store", "uri", opts.URI, "database", opts.Database, "dialect", dialect)
	return &Neo4jDriver{
		Driver:   driver,
		Database: opts.Database,
		Dialect:  dialect,
		log:      log.With("component", "Neo4jDriver"),
	}, nil
}

// Connect opens a new session. Sessions are cheap and not goroutine-safe.
func (d *Neo4jDriver) Connect(ctx context.Context) (GraphDriver, error) {
	session := d.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: d.Database,
	})
	return &Neo4jSession{session: session, dialect: d.Dialect}, nil
}

func (d *Neo4jDriver) Close(ctx context.Context) error {
	if d == nil || d.Driver == nil {
		return nil
	}
	return d.Driver.Close(ctx)
}

type Neo4jSession struct {
	session neo4j.SessionWithContext
	dialect Dialect
}

func (s *Neo4jSession) Close(ctx context.Context) error {
	return s.session.Close(ctx)
}

func (s *Neo4jSession) DeclareUniqueConstraint(ctx context.Context, label model.Label, property string) error {
	query, err := UniqueConstraintQuery(s.dialect, label, property)
	if err != nil {
		return err
	}
	// Schema statements cannot share a transaction with data writes.
	res, err := s.session.Run(ctx, query, nil)
	if err != nil {
		return fmt.Errorf("declare constraint on %s.%s: %w", label, property, err)
	}
	if _, err := res.Consume(ctx); err != nil {
		return fmt.Errorf("declare constraint on %s.%s: %w", label, property, err)
	}
	return nil
}

func (s *Neo4jSession) UpsertNodes(ctx context.Context, nodes []model.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	order, rows, props := nodeRows(nodes)
	queries := make(map[model.Label]string, len(order))
	for _, label := range order {
		q, err := UpsertNodesQuery(label, props[label])
		if err != nil {
			return err
		}
		queries[label] = q
	}

	_, err := s.session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, label := range order {
			res, err := tx.Run(ctx, queries[label], map[string]any{"rows": rows[label]})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return &WriteTransactionError{Target: targetOfNodes(order), Size: len(nodes), Err: err}
	}
	return nil
}

func (s *Neo4jSession) MergeEdges(ctx context.Context, edges []model.Edge) ([]model.Edge, error) {
	if len(edges) == 0 {
		return nil, nil
	}
	order, rows := edgeRows(edges)
	queries := make(map[model.Shape]string, len(order))
	for _, shape := range order {
		q, err := MergeEdgesQuery(shape)
		if err != nil {
			return nil, err
		}
		queries[shape] = q
	}

	matched, err := s.session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		hit := make(map[int64]struct{}, len(edges))
		for _, shape := range order {
			res, err := tx.Run(ctx, queries[shape], map[string]any{"rels": rows[shape]})
			if err != nil {
				return nil, err
			}
			records, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}
			for _, rec := range records {
				if v, ok := rec.Get("idx"); ok {
					if idx, ok := v.(int64); ok {
						hit[idx] = struct{}{}
					}
				}
			}
		}
		return hit, nil
	})
	if err != nil {
		return nil, &WriteTransactionError{Target: targetOfEdges(order), Size: len(edges), Err: err}
	}

	hit := matched.(map[int64]struct{})
	var missing []model.Edge
	for i, e := range edges {
		if _, ok := hit[int64(i)]; !ok {
			missing = append(missing, e)
		}
	}
	return missing, nil
}

func (s *Neo4jSession) NodeExists(ctx context.Context, label model.Label, globalID string) (bool, error) {
	query, err := nodeExistsQuery(label)
	if err != nil {
		return false, err
	}
	found, err := s.session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"globalId": globalID})
		if err != nil {
			return false, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return false, err
		}
		v, _ := rec.Get("found")
		b, _ := v.(bool)
		return b, nil
	})
	if err != nil {
		return false, fmt.Errorf("lookup %s %s: %w", label, globalID, err)
	}
	return found.(bool), nil
}

func (s *Neo4jSession) Publications(ctx context.Context) ([]model.PublicationAbstract, error) {
	out, err := s.session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, PublicationsQuery, nil)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		pubs := make([]model.PublicationAbstract, 0, len(records))
		for _, rec := range records {
			id, _ := rec.Get("globalId")
			abstract, _ := rec.Get("abstract")
			p := model.PublicationAbstract{}
			p.GlobalID, _ = id.(string)
			p.Abstract, _ = abstract.(string)
			pubs = append(pubs, p)
		}
		return pubs, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}
	return out.([]model.PublicationAbstract), nil
}

func (s *Neo4jSession) KeywordByName(ctx context.Context, name string) (string, bool, error) {
	out, err := s.session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, KeywordByNameQuery, map[string]any{"name": name})
		if err != nil {
			return "", err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return "", err
		}
		if len(records) == 0 {
			return "", nil
		}
		v, _ := records[0].Get("globalId")
		id, _ := v.(string)
		return id, nil
	})
	if err != nil {
		return "", false, fmt.Errorf("lookup keyword %q: %w", name, err)
	}
	id := out.(string)
	return id, id != "", nil
}

func targetOfNodes(labels []model.Label) string {
	if len(labels) == 1 {
		return string(labels[0])
	}
	return fmt.Sprintf("%v", labels)
}

func targetOfEdges(shapes []model.Shape) string {
	if len(shapes) == 1 {
		return string(shapes[0].Type)
	}
	types := make([]string, 0, len(shapes))
	for _, s := range shapes {
		types = append(types, string(s.Type))
	}
	return fmt.Sprintf("%v", types)
}
