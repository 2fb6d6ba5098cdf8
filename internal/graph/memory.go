package graph

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/opsgraph/opsgraph-backend/internal/domain"
	apperrors "github.com/opsgraph/opsgraph-backend/internal/pkg/errors"
)

// MemoryStore is the in-process Store used when no Neo4j instance is
// configured, and the backend every test runs against. Nodes and edges keep
// insertion order so traversal tie-breaks are stable.
type MemoryStore struct {
	mu        sync.RWMutex
	nodes     map[string]*domain.Node
	nodeOrder []string
	edges     map[string]*domain.Edge
	out       map[string][]string // node id -> outgoing edge ids, insertion order
	in        map[string][]string // node id -> incoming edge ids, insertion order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]*domain.Node),
		edges: make(map[string]*domain.Edge),
		out:   make(map[string][]string),
		in:    make(map[string][]string),
	}
}

func (s *MemoryStore) UpsertNode(ctx context.Context, node domain.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !node.Type.Valid() {
		return fmt.Errorf("upsert node %s: invalid type %q: %w", node.ID, node.Type, apperrors.ErrInvalidArgument)
	}
	if node.ID == "" {
		node.ID = domain.NodeID(node.Type, node.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.nodes[node.ID]; ok {
		existing.Name = node.Name
		existing.Type = node.Type
		existing.Properties = mergeProperties(existing.Properties, node.Properties)
		return nil
	}

	stored := node
	stored.Properties = mergeProperties(nil, node.Properties)
	s.nodes[node.ID] = &stored
	s.nodeOrder = append(s.nodeOrder, node.ID)
	return nil
}

func (s *MemoryStore) GetNode(ctx context.Context, id string) (*domain.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, nil
	}
	return cloneNode(n), nil
}

func (s *MemoryStore) GetNodesByType(ctx context.Context, t domain.NodeType, filters map[string]any) ([]domain.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t != "" && !t.Valid() {
		return nil, fmt.Errorf("get nodes: invalid type %q: %w", t, apperrors.ErrInvalidArgument)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Node
	for _, id := range s.nodeOrder {
		n := s.nodes[id]
		if t != "" && n.Type != t {
			continue
		}
		if !propertiesMatch(n.Properties, filters) {
			continue
		}
		result = append(result, *cloneNode(n))
	}
	return result, nil
}

func (s *MemoryStore) DeleteNode(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return nil
	}

	touching := append([]string{}, s.out[id]...)
	touching = append(touching, s.in[id]...)
	for _, edgeID := range touching {
		s.removeEdgeLocked(edgeID)
	}

	delete(s.nodes, id)
	delete(s.out, id)
	delete(s.in, id)
	for i, nid := range s.nodeOrder {
		if nid == id {
			s.nodeOrder = append(s.nodeOrder[:i], s.nodeOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) UpsertEdge(ctx context.Context, edge domain.Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !edge.Type.Valid() {
		return fmt.Errorf("upsert edge %s: invalid type %q: %w", edge.ID, edge.Type, apperrors.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[edge.Source]; !ok {
		return &apperrors.IntegrityError{EdgeID: edge.ID, MissingNode: edge.Source}
	}
	if _, ok := s.nodes[edge.Target]; !ok {
		return &apperrors.IntegrityError{EdgeID: edge.ID, MissingNode: edge.Target}
	}

	if existing, ok := s.edges[edge.ID]; ok {
		if existing.Source != edge.Source || existing.Target != edge.Target {
			s.removeEdgeLocked(edge.ID)
		} else {
			existing.Type = edge.Type
			existing.Properties = mergeProperties(existing.Properties, edge.Properties)
			return nil
		}
	}

	stored := edge
	stored.Properties = mergeProperties(nil, edge.Properties)
	s.edges[edge.ID] = &stored
	s.out[edge.Source] = append(s.out[edge.Source], edge.ID)
	s.in[edge.Target] = append(s.in[edge.Target], edge.ID)
	return nil
}

func (s *MemoryStore) Outgoing(ctx context.Context, id string) ([]domain.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectEdgesLocked(s.out[id]), nil
}

func (s *MemoryStore) Incoming(ctx context.Context, id string) ([]domain.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectEdgesLocked(s.in[id]), nil
}

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

func (s *MemoryStore) collectEdgesLocked(ids []string) []domain.Edge {
	if len(ids) == 0 {
		return nil
	}
	edges := make([]domain.Edge, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.edges[id]; ok {
			c := *e
			c.Properties = mergeProperties(nil, e.Properties)
			edges = append(edges, c)
		}
	}
	return edges
}

// removeEdgeLocked detaches an edge from both adjacency lists and drops it.
func (s *MemoryStore) removeEdgeLocked(edgeID string) {
	e, ok := s.edges[edgeID]
	if !ok {
		return
	}
	s.out[e.Source] = removeID(s.out[e.Source], edgeID)
	s.in[e.Target] = removeID(s.in[e.Target], edgeID)
	delete(s.edges, edgeID)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func cloneNode(n *domain.Node) *domain.Node {
	c := *n
	c.Properties = mergeProperties(nil, n.Properties)
	return &c
}

func propertiesMatch(props, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := props[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
