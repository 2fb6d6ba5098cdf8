package query

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opsgraph/opsgraph-backend/internal/domain"
	"github.com/opsgraph/opsgraph-backend/internal/graph"
	"github.com/opsgraph/opsgraph-backend/internal/platform/logger"
)

// DefaultMaxDepth bounds every traversal so cyclic graphs terminate.
const DefaultMaxDepth = 10

// Engine answers read-only questions over the graph store: ownership,
// bounded transitive closure, shortest paths, and aggregate impact. It holds
// no mutable state, so one Engine serves any number of concurrent sessions.
type Engine struct {
	store    graph.Store
	log      *logger.Logger
	tracer   trace.Tracer
	maxDepth int
}

func NewEngine(store graph.Store, log *logger.Logger, maxDepth int) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("query engine: store required")
	}
	if log == nil {
		return nil, fmt.Errorf("query engine: logger required")
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Engine{
		store:    store,
		log:      log.With("service", "QueryEngine"),
		tracer:   otel.Tracer("opsgraph/query"),
		maxDepth: maxDepth,
	}, nil
}

// GetNode is a pass-through lookup; absence is (nil, nil).
func (e *Engine) GetNode(ctx context.Context, nodeID string) (*domain.Node, error) {
	return e.store.GetNode(ctx, nodeID)
}

// ListNodes returns nodes of a type with optional property equality filters.
func (e *Engine) ListNodes(ctx context.Context, t domain.NodeType, filters map[string]any) ([]domain.Node, error) {
	return e.store.GetNodesByType(ctx, t, filters)
}

// Owner resolves the team owning nodeID: one reverse hop along owns edges.
// The data model assumes at most one owner; if several exist, the first edge
// in store order wins.
func (e *Engine) Owner(ctx context.Context, nodeID string) (*domain.Node, error) {
	ctx, span := e.tracer.Start(ctx, "engine.owner", trace.WithAttributes(attribute.String("node.id", nodeID)))
	defer span.End()

	incoming, err := e.store.Incoming(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	for _, edge := range incoming {
		if edge.Type != domain.EdgeOwns {
			continue
		}
		owner, err := e.store.GetNode(ctx, edge.Source)
		if err != nil {
			return nil, err
		}
		if owner != nil && owner.Type == domain.NodeTeam {
			return owner, nil
		}
	}
	return nil, nil
}

// OwnedByTeam lists everything a team owns, one hop along outgoing owns
// edges, optionally restricted to a single entity type.
func (e *Engine) OwnedByTeam(ctx context.Context, teamID string, filter domain.NodeType) ([]domain.Node, error) {
	ctx, span := e.tracer.Start(ctx, "engine.owned_by_team", trace.WithAttributes(attribute.String("team.id", teamID)))
	defer span.End()

	outgoing, err := e.store.Outgoing(ctx, teamID)
	if err != nil {
		return nil, err
	}
	var owned []domain.Node
	for _, edge := range outgoing {
		if edge.Type != domain.EdgeOwns {
			continue
		}
		n, err := e.store.GetNode(ctx, edge.Target)
		if err != nil {
			return nil, err
		}
		if n == nil {
			continue
		}
		if filter != "" && n.Type != filter {
			continue
		}
		owned = append(owned, *n)
	}
	return owned, nil
}

// Downstream collects every node reachable from nodeID by following
// outgoing edges of any type within maxDepth hops, deduplicated, optionally
// filtered to one entity type. The start node is not part of the result.
func (e *Engine) Downstream(ctx context.Context, nodeID string, filter domain.NodeType, maxDepth int) ([]domain.Node, error) {
	ctx, span := e.tracer.Start(ctx, "engine.downstream", trace.WithAttributes(attribute.String("node.id", nodeID)))
	defer span.End()
	return e.traverse(ctx, nodeID, filter, maxDepth, e.store.Outgoing, edgeTarget)
}

// Upstream is the mirror of Downstream: everything that can reach nodeID by
// following edges in reverse within maxDepth hops.
func (e *Engine) Upstream(ctx context.Context, nodeID string, filter domain.NodeType, maxDepth int) ([]domain.Node, error) {
	ctx, span := e.tracer.Start(ctx, "engine.upstream", trace.WithAttributes(attribute.String("node.id", nodeID)))
	defer span.End()
	return e.traverse(ctx, nodeID, filter, maxDepth, e.store.Incoming, edgeSource)
}

func edgeTarget(e domain.Edge) string { return e.Target }
func edgeSource(e domain.Edge) string { return e.Source }

// traverse runs a breadth-first expansion from start. A visited set keeps
// cycles (e.g. bidirectional calls) from looping or duplicating results.
// Neighbors expand in edge order, so with the memory backend equal-depth
// nodes surface in edge-insertion order.
func (e *Engine) traverse(
	ctx context.Context,
	start string,
	filter domain.NodeType,
	maxDepth int,
	edgesOf func(context.Context, string) ([]domain.Edge, error),
	nextOf func(domain.Edge) string,
) ([]domain.Node, error) {
	if maxDepth <= 0 || maxDepth > e.maxDepth {
		maxDepth = e.maxDepth
	}

	type item struct {
		id    string
		depth int
	}
	visited := map[string]bool{start: true}
	queue := []item{{id: start}}
	var result []domain.Node

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		edges, err := edgesOf(ctx, cur.id)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			next := nextOf(edge)
			if visited[next] {
				continue
			}
			visited[next] = true

			n, err := e.store.GetNode(ctx, next)
			if err != nil {
				return nil, err
			}
			if n != nil && (filter == "" || n.Type == filter) {
				result = append(result, *n)
			}
			queue = append(queue, item{id: next, depth: cur.depth + 1})
		}
	}
	return result, nil
}

// ShortestPath returns the ordered node ids of an unweighted shortest
// directed path from fromID to toID, inclusive. It returns an empty slice
// when either endpoint is absent or no path exists within the traversal
// horizon. Among equal-length paths the one discovered first in edge order
// wins; that tie-break is implementation-defined, not a guarantee.
func (e *Engine) ShortestPath(ctx context.Context, fromID, toID string) ([]string, error) {
	ctx, span := e.tracer.Start(ctx, "engine.shortest_path",
		trace.WithAttributes(attribute.String("from.id", fromID), attribute.String("to.id", toID)))
	defer span.End()

	from, err := e.store.GetNode(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := e.store.GetNode(ctx, toID)
	if err != nil {
		return nil, err
	}
	if from == nil || to == nil {
		return nil, nil
	}
	if fromID == toID {
		return []string{fromID}, nil
	}

	type item struct {
		id    string
		depth int
	}
	parent := map[string]string{}
	visited := map[string]bool{fromID: true}
	queue := []item{{id: fromID}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= e.maxDepth {
			continue
		}

		edges, err := e.store.Outgoing(ctx, cur.id)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			next := edge.Target
			if visited[next] {
				continue
			}
			visited[next] = true
			parent[next] = cur.id

			if next == toID {
				return assemblePath(parent, fromID, toID), nil
			}
			queue = append(queue, item{id: next, depth: cur.depth + 1})
		}
	}
	return nil, nil
}

func assemblePath(parent map[string]string, fromID, toID string) []string {
	var reversed []string
	for id := toID; ; id = parent[id] {
		reversed = append(reversed, id)
		if id == fromID {
			break
		}
	}
	path := make([]string, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path
}

// BlastRadius aggregates the full impact of nodeID failing: its bounded
// downstream and upstream closures, and the deduplicated owning teams of
// every affected node including the node itself. Returns (nil, nil) when the
// node does not exist.
func (e *Engine) BlastRadius(ctx context.Context, nodeID string, filter domain.NodeType) (*domain.BlastRadius, error) {
	ctx, span := e.tracer.Start(ctx, "engine.blast_radius", trace.WithAttributes(attribute.String("node.id", nodeID)))
	defer span.End()

	self, err := e.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if self == nil {
		return nil, nil
	}

	downstream, err := e.Downstream(ctx, nodeID, filter, 0)
	if err != nil {
		return nil, err
	}
	upstream, err := e.Upstream(ctx, nodeID, filter, 0)
	if err != nil {
		return nil, err
	}

	affected := make([]string, 0, len(downstream)+len(upstream)+1)
	seen := map[string]bool{}
	for _, n := range append(append([]domain.Node{*self}, downstream...), upstream...) {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		affected = append(affected, n.ID)
	}

	var teams []domain.Node
	teamSeen := map[string]bool{}
	for _, id := range affected {
		owner, err := e.Owner(ctx, id)
		if err != nil {
			return nil, err
		}
		if owner == nil || teamSeen[owner.ID] {
			continue
		}
		teamSeen[owner.ID] = true
		teams = append(teams, *owner)
	}

	return &domain.BlastRadius{
		Node:       nodeID,
		Downstream: downstream,
		Upstream:   upstream,
		Teams:      teams,
	}, nil
}
