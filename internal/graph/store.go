package graph

import (
	"context"

	"github.com/opsgraph/opsgraph-backend/internal/domain"
)

// Store is the graph persistence contract. Any backend that can do
// id-indexed node lookup, type scans with property equality filters, and
// directed-edge listing satisfies it.
//
// Reads report absence as (nil, nil) or an empty slice, never an error.
// UpsertEdge fails with *errors.IntegrityError when either endpoint is
// missing.
type Store interface {
	UpsertNode(ctx context.Context, node domain.Node) error
	GetNode(ctx context.Context, id string) (*domain.Node, error)
	// GetNodesByType returns nodes of the given type whose properties match
	// every filter entry. An empty type matches all types; an empty filter
	// set matches all nodes of the type.
	GetNodesByType(ctx context.Context, t domain.NodeType, filters map[string]any) ([]domain.Node, error)
	// DeleteNode removes the node and every edge whose source or target is id.
	DeleteNode(ctx context.Context, id string) error
	UpsertEdge(ctx context.Context, edge domain.Edge) error
	// Outgoing lists edges leaving the node. The memory backend returns them
	// in insertion order; other backends make no ordering promise.
	Outgoing(ctx context.Context, id string) ([]domain.Edge, error)
	// Incoming lists edges arriving at the node.
	Incoming(ctx context.Context, id string) ([]domain.Edge, error)
	Close(ctx context.Context) error
}

// mergeProperties unions existing and provided maps; provided keys win,
// absent keys are preserved. The result is always a fresh map.
func mergeProperties(existing, provided map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(provided))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range provided {
		out[k] = v
	}
	return out
}
