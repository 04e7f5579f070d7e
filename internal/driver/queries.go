package driver

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agenthands/scigraph/internal/core/model"
)

// Dialect selects the schema DDL flavour. Data statements are shared.
type Dialect string

const (
	DialectNeo4j    Dialect = "neo4j"
	DialectMemgraph Dialect = "memgraph"
)

const (
	NodeExistsQuery = `
		MATCH (n:%s {globalId: $globalId})
		RETURN count(n) > 0 AS found
	`

	PublicationsQuery = `
		MATCH (p:Publication)
		RETURN p.globalId AS globalId, coalesce(p.abstract, '') AS abstract
		ORDER BY globalId
	`

	KeywordByNameQuery = `
		MATCH (k:ScienceKeyword)
		WHERE toLower(k.name) = toLower($name)
		RETURN k.globalId AS globalId
		LIMIT 1
	`
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Labels, relationship types and property names are interpolated into
// Cypher, so they must be plain identifiers.
func checkIdentifier(s string) error {
	if !identifierPattern.MatchString(s) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	return nil
}

func checkIdentifiers(ss ...string) error {
	for _, s := range ss {
		if err := checkIdentifier(s); err != nil {
			return err
		}
	}
	return nil
}

func UniqueConstraintQuery(dialect Dialect, label model.Label, property string) (string, error) {
	if err := checkIdentifiers(string(label), property); err != nil {
		return "", err
	}
	switch dialect {
	case DialectMemgraph:
		return fmt.Sprintf("CREATE CONSTRAINT ON (n:%s) ASSERT n.%s IS UNIQUE", label, property), nil
	default:
		name := strings.ToLower(string(label)) + "_" + property + "_unique"
		return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE", name, label, property), nil
	}
}

// UpsertNodesQuery builds the create-or-enrich statement for one label.
// Rows are {globalId, props}. On create every supplied property is set; on
// match a property is only written while it is still null.
func UpsertNodesQuery(label model.Label, properties []string) (string, error) {
	if err := checkIdentifier(string(label)); err != nil {
		return "", err
	}
	props := append([]string(nil), properties...)
	sort.Strings(props)

	var b strings.Builder
	fmt.Fprintf(&b, "UNWIND $rows AS row\nMERGE (n:%s {%s: row.globalId})\nON CREATE SET n += row.props", label, model.KeyProperty)
	if len(props) > 0 {
		sets := make([]string, 0, len(props))
		for _, p := range props {
			if err := checkIdentifier(p); err != nil {
				return "", err
			}
			sets = append(sets, fmt.Sprintf("n.%s = coalesce(n.%s, row.props.%s)", p, p, p))
		}
		b.WriteString("\nON MATCH SET ")
		b.WriteString(strings.Join(sets, ",\n\t"))
	}
	return b.String(), nil
}

// MergeEdgesQuery builds the match-then-merge statement for one edge shape.
// Rows are {idx, source, target}; the statement returns the idx of every row
// whose endpoints both matched.
func MergeEdgesQuery(shape model.Shape) (string, error) {
	if err := checkIdentifiers(
		string(shape.Type),
		string(shape.SourceLabel), shape.SourceProperty,
		string(shape.TargetLabel), shape.TargetProperty,
	); err != nil {
		return "", err
	}
	return fmt.Sprintf(`UNWIND $rels AS rel
MATCH (s:%s {%s: rel.source})
MATCH (t:%s {%s: rel.target})
MERGE (s)-[:%s]->(t)
RETURN DISTINCT rel.idx AS idx`,
		shape.SourceLabel, shape.SourceProperty,
		shape.TargetLabel, shape.TargetProperty,
		shape.Type), nil
}

func nodeExistsQuery(label model.Label) (string, error) {
	if err := checkIdentifier(string(label)); err != nil {
		return "", err
	}
	return fmt.Sprintf(NodeExistsQuery, label), nil
}

// nodeRows groups nodes by label, keeping first-seen label order, and
// returns the UNWIND rows plus the union of property names per label.
func nodeRows(nodes []model.Node) ([]model.Label, map[model.Label][]map[string]any, map[model.Label][]string) {
	var order []model.Label
	rows := map[model.Label][]map[string]any{}
	seen := map[model.Label]map[string]struct{}{}
	for _, n := range nodes {
		if _, ok := rows[n.Label]; !ok {
			order = append(order, n.Label)
			seen[n.Label] = map[string]struct{}{}
		}
		props := make(map[string]any, len(n.Attributes)+1)
		for k, v := range n.Attributes {
			props[k] = v
			seen[n.Label][k] = struct{}{}
		}
		props[model.KeyProperty] = n.GlobalID
		rows[n.Label] = append(rows[n.Label], map[string]any{
			"globalId": n.GlobalID,
			"props":    props,
		})
	}
	keys := make(map[model.Label][]string, len(seen))
	for label, set := range seen {
		for k := range set {
			if k == model.KeyProperty {
				continue
			}
			keys[label] = append(keys[label], k)
		}
	}
	return order, rows, keys
}

// edgeRows groups edges by shape in first-seen order. idx is the position
// of the edge in the input slice.
func edgeRows(edges []model.Edge) ([]model.Shape, map[model.Shape][]map[string]any) {
	var order []model.Shape
	rows := map[model.Shape][]map[string]any{}
	for i, e := range edges {
		shape := e.Shape()
		if _, ok := rows[shape]; !ok {
			order = append(order, shape)
		}
		rows[shape] = append(rows[shape], map[string]any{
			"idx":    int64(i),
			"source": e.Source.Value,
			"target": e.Target.Value,
		})
	}
	return order, rows
}
