package driver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agenthands/scigraph/internal/core/model"
)

type edgeKey struct {
	Type        model.RelType
	SourceLabel model.Label
	SourceID    string
	TargetLabel model.Label
	TargetID    string
}

// MemoryStore is an in-process graph with the same write contract as the
// Bolt store. It backs --dry-run and the unit tests. All sessions returned
// by Connect share the one store.
type MemoryStore struct {
	mu          sync.Mutex
	strict      bool
	nodes       map[model.Label]map[string]map[string]any
	edges       map[edgeKey]struct{}
	constraints map[string]struct{}
	connects    int
	closes      int
	violations  int

	// Test hooks. A non-nil return fails the whole transaction.
	FailNodes func(nodes []model.Node) error
	FailEdges func(edges []model.Edge) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:       map[model.Label]map[string]map[string]any{},
		edges:       map[edgeKey]struct{}{},
		constraints: map[string]struct{}{},
	}
}

// NewStrictMemoryStore rejects edge merges whose endpoints are missing with
// ErrBarrierViolation instead of reporting them as missing.
func NewStrictMemoryStore() *MemoryStore {
	s := NewMemoryStore()
	s.strict = true
	return s
}

func (s *MemoryStore) Connect(ctx context.Context) (GraphDriver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.connects++
	s.mu.Unlock()
	return &memorySession{store: s}, nil
}

func (s *MemoryStore) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// OpenSessions is Connects minus closed sessions.
func (s *MemoryStore) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects - s.closes
}

func (s *MemoryStore) Violations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.violations
}

func (s *MemoryStore) Constraints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.constraints))
	for c := range s.constraints {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// NodeCount counts nodes of label, or of every label when label is "".
func (s *MemoryStore) NodeCount(label model.Label) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if label != "" {
		return len(s.nodes[label])
	}
	n := 0
	for _, byID := range s.nodes {
		n += len(byID)
	}
	return n
}

// Node returns a copy of the node's properties.
func (s *MemoryStore) Node(label model.Label, globalID string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	props, ok := s.nodes[label][globalID]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out, true
}

// EdgeCount counts edges of relType, or every edge when relType is "".
func (s *MemoryStore) EdgeCount(relType model.RelType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if relType == "" {
		return len(s.edges)
	}
	n := 0
	for k := range s.edges {
		if k.Type == relType {
			n++
		}
	}
	return n
}

func (s *MemoryStore) HasEdge(relType model.RelType, source, target model.Endpoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.match(source) {
		for _, tgt := range s.match(target) {
			if _, ok := s.edges[edgeKey{relType, source.Label, src, target.Label, tgt}]; ok {
				return true
			}
		}
	}
	return false
}

// match returns the globalIds of nodes selected by ep. Caller holds mu.
func (s *MemoryStore) match(ep model.Endpoint) []string {
	byID := s.nodes[ep.Label]
	if ep.Property == model.KeyProperty {
		if _, ok := byID[ep.Value]; ok {
			return []string{ep.Value}
		}
		return nil
	}
	var ids []string
	for id, props := range byID {
		if v, ok := props[ep.Property]; ok && v == ep.Value {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

type memorySession struct {
	store  *MemoryStore
	closed bool
}

func (m *memorySession) Close(ctx context.Context) error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.store.mu.Lock()
	m.store.closes++
	m.store.mu.Unlock()
	return nil
}

func (m *memorySession) DeclareUniqueConstraint(ctx context.Context, label model.Label, property string) error {
	if err := checkIdentifiers(string(label), property); err != nil {
		return err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.constraints[string(label)+"."+property] = struct{}{}
	return nil
}

func (m *memorySession) UpsertNodes(ctx context.Context, nodes []model.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}
	if m.store.FailNodes != nil {
		if err := m.store.FailNodes(nodes); err != nil {
			order, _, _ := nodeRows(nodes)
			return &WriteTransactionError{Target: targetOfNodes(order), Size: len(nodes), Err: err}
		}
	}
	for _, n := range nodes {
		if err := checkIdentifier(string(n.Label)); err != nil {
			return err
		}
	}

	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		byID, ok := s.nodes[n.Label]
		if !ok {
			byID = map[string]map[string]any{}
			s.nodes[n.Label] = byID
		}
		props, exists := byID[n.GlobalID]
		if !exists {
			props = map[string]any{model.KeyProperty: n.GlobalID}
			byID[n.GlobalID] = props
		}
		for k, v := range n.Attributes {
			if v == nil {
				continue
			}
			if cur, ok := props[k]; exists && ok && cur != nil {
				continue
			}
			props[k] = v
		}
	}
	return nil
}

func (m *memorySession) MergeEdges(ctx context.Context, edges []model.Edge) ([]model.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, nil
	}
	if m.store.FailEdges != nil {
		if err := m.store.FailEdges(edges); err != nil {
			order, _ := edgeRows(edges)
			return nil, &WriteTransactionError{Target: targetOfEdges(order), Size: len(edges), Err: err}
		}
	}
	for _, e := range edges {
		if err := checkIdentifiers(string(e.Type), string(e.Source.Label), e.Source.Property, string(e.Target.Label), e.Target.Property); err != nil {
			return nil, err
		}
	}

	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	type resolved struct {
		sources, targets []string
	}
	hits := make([]resolved, len(edges))
	var missing []model.Edge
	for i, e := range edges {
		hits[i] = resolved{sources: s.match(e.Source), targets: s.match(e.Target)}
		if len(hits[i].sources) == 0 || len(hits[i].targets) == 0 {
			missing = append(missing, e)
		}
	}
	if s.strict && len(missing) > 0 {
		s.violations += len(missing)
		return nil, fmt.Errorf("%w: %s", ErrBarrierViolation, missing[0])
	}
	for i, e := range edges {
		for _, src := range hits[i].sources {
			for _, tgt := range hits[i].targets {
				s.edges[edgeKey{e.Type, e.Source.Label, src, e.Target.Label, tgt}] = struct{}{}
			}
		}
	}
	return missing, nil
}

func (m *memorySession) NodeExists(ctx context.Context, label model.Label, globalID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	_, ok := m.store.nodes[label][globalID]
	return ok, nil
}

func (m *memorySession) Publications(ctx context.Context) ([]model.PublicationAbstract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	pubs := make([]model.PublicationAbstract, 0, len(m.store.nodes[model.LabelPublication]))
	for id, props := range m.store.nodes[model.LabelPublication] {
		abstract, _ := props["abstract"].(string)
		pubs = append(pubs, model.PublicationAbstract{GlobalID: id, Abstract: abstract})
	}
	sort.Slice(pubs, func(i, j int) bool { return pubs[i].GlobalID < pubs[j].GlobalID })
	return pubs, nil
}

func (m *memorySession) KeywordByName(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var ids []string
	for id, props := range m.store.nodes[model.LabelScienceKeyword] {
		if v, _ := props["name"].(string); strings.EqualFold(v, name) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", false, nil
	}
	sort.Strings(ids)
	return ids[0], true, nil
}
