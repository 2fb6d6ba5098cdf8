package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/opsgraph/opsgraph-backend/internal/domain"
	apperrors "github.com/opsgraph/opsgraph-backend/internal/pkg/errors"
	"github.com/opsgraph/opsgraph-backend/internal/platform/logger"
	"github.com/opsgraph/opsgraph-backend/internal/platform/neo4jdb"
)

// Neo4jStore implements Store on top of a Neo4j database. Node types map to
// labels and edge types to uppercase relationship types. Labels and
// relationship types cannot be query parameters, so they are validated
// against the closed enums before being spliced into cypher; everything
// else travels as parameters.
type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, log *logger.Logger) (*Neo4jStore, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("neo4j store: client required")
	}
	if log == nil {
		return nil, fmt.Errorf("neo4j store: logger required")
	}
	return &Neo4jStore{client: client, log: log.With("store", "neo4j")}, nil
}

// EnsureSchema creates the id uniqueness constraints per label. Best effort:
// restricted users may not be allowed to manage schema.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, t := range []domain.NodeType{domain.NodeService, domain.NodeDatabase, domain.NodeCache, domain.NodeTeam} {
		stmt := fmt.Sprintf(
			"CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE", t, t)
		if res, err := session.Run(ctx, stmt, nil); err != nil {
			s.log.Warn("schema init failed (continuing)", "label", t, "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}

func (s *Neo4jStore) UpsertNode(ctx context.Context, node domain.Node) error {
	if !node.Type.Valid() {
		return fmt.Errorf("upsert node %s: invalid type %q: %w", node.ID, node.Type, apperrors.ErrInvalidArgument)
	}
	if node.ID == "" {
		node.ID = domain.NodeID(node.Type, node.Name)
	}

	props := mergeProperties(nil, node.Properties)
	props["id"] = node.ID
	props["name"] = node.Name

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
MERGE (n:%s {id: $id})
SET n += $props
`, node.Type), map[string]any{"id": node.ID, "props": props})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("upsert node %s: %w", node.ID, err)
	}
	return nil
}

func (s *Neo4jStore) GetNode(ctx context.Context, id string) (*domain.Node, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n {id: $id})
RETURN labels(n) AS labels, properties(n) AS props
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}

	records := out.([]*neo4j.Record)
	if len(records) == 0 {
		return nil, nil
	}
	return recordToNode(records[0])
}

func (s *Neo4jStore) GetNodesByType(ctx context.Context, t domain.NodeType, filters map[string]any) ([]domain.Node, error) {
	if t != "" && !t.Valid() {
		return nil, fmt.Errorf("get nodes: invalid type %q: %w", t, apperrors.ErrInvalidArgument)
	}

	match := "MATCH (n)"
	if t != "" {
		match = fmt.Sprintf("MATCH (n:%s)", t)
	}

	// Property names are arbitrary, so they are matched with dynamic
	// property access rather than spliced into the query text.
	params := map[string]any{}
	var conds []string
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		kp := fmt.Sprintf("fk%d", i)
		vp := fmt.Sprintf("fv%d", i)
		conds = append(conds, fmt.Sprintf("n[$%s] = $%s", kp, vp))
		params[kp] = k
		params[vp] = filters[k]
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
%s
%s
RETURN labels(n) AS labels, properties(n) AS props
`, match, where), params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("get nodes by type %q: %w", t, err)
	}

	records := out.([]*neo4j.Record)
	nodes := make([]domain.Node, 0, len(records))
	for _, rec := range records {
		n, err := recordToNode(rec)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes, nil
}

func (s *Neo4jStore) DeleteNode(ctx context.Context, id string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n {id: $id})
DETACH DELETE n
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return nil
}

func (s *Neo4jStore) UpsertEdge(ctx context.Context, edge domain.Edge) error {
	if !edge.Type.Valid() {
		return fmt.Errorf("upsert edge %s: invalid type %q: %w", edge.ID, edge.Type, apperrors.ErrInvalidArgument)
	}

	props := mergeProperties(nil, edge.Properties)
	props["id"] = edge.ID

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// A MERGE with unmatched endpoints would silently do nothing, so
		// endpoint existence is checked first inside the same transaction.
		res, err := tx.Run(ctx, `
OPTIONAL MATCH (a {id: $source})
OPTIONAL MATCH (b {id: $target})
RETURN a IS NOT NULL AS hasSource, b IS NOT NULL AS hasTarget
`, map[string]any{"source": edge.Source, "target": edge.Target})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		if has, _ := rec.Get("hasSource"); has != true {
			return nil, &apperrors.IntegrityError{EdgeID: edge.ID, MissingNode: edge.Source}
		}
		if has, _ := rec.Get("hasTarget"); has != true {
			return nil, &apperrors.IntegrityError{EdgeID: edge.ID, MissingNode: edge.Target}
		}

		res, err = tx.Run(ctx, fmt.Sprintf(`
MATCH (a {id: $source})
MATCH (b {id: $target})
MERGE (a)-[r:%s {id: $id}]->(b)
SET r += $props
`, relType(edge.Type)), map[string]any{
			"source": edge.Source,
			"target": edge.Target,
			"id":     edge.ID,
			"props":  props,
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		var integrity *apperrors.IntegrityError
		if errors.As(err, &integrity) {
			return integrity
		}
		return fmt.Errorf("upsert edge %s: %w", edge.ID, err)
	}
	return nil
}

func (s *Neo4jStore) Outgoing(ctx context.Context, id string) ([]domain.Edge, error) {
	return s.listEdges(ctx, id, `
MATCH (a {id: $id})-[r]->(b)
RETURN r.id AS id, type(r) AS type, properties(r) AS props, a.id AS source, b.id AS target
`)
}

func (s *Neo4jStore) Incoming(ctx context.Context, id string) ([]domain.Edge, error) {
	return s.listEdges(ctx, id, `
MATCH (a)-[r]->(b {id: $id})
RETURN r.id AS id, type(r) AS type, properties(r) AS props, a.id AS source, b.id AS target
`)
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.client.Database,
	})
}

func (s *Neo4jStore) listEdges(ctx context.Context, id, cypher string) ([]domain.Edge, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list edges of %s: %w", id, err)
	}

	records := out.([]*neo4j.Record)
	if len(records) == 0 {
		return nil, nil
	}
	edges := make([]domain.Edge, 0, len(records))
	for _, rec := range records {
		e, err := recordToEdge(rec)
		if err != nil {
			return nil, err
		}
		edges = append(edges, *e)
	}
	return edges, nil
}

// relType maps an edge type onto its relationship-type spelling in the
// database (uppercase, per cypher convention).
func relType(t domain.EdgeType) string {
	return strings.ToUpper(string(t))
}

func recordToNode(rec *neo4j.Record) (*domain.Node, error) {
	rawLabels, _ := rec.Get("labels")
	labels, _ := rawLabels.([]any)
	if len(labels) == 0 {
		return nil, fmt.Errorf("node record without labels")
	}
	rawProps, _ := rec.Get("props")
	props, _ := rawProps.(map[string]any)

	n := &domain.Node{
		Type:       domain.NodeType(fmt.Sprint(labels[0])),
		Properties: mergeProperties(nil, props),
	}
	if id, ok := n.Properties["id"].(string); ok {
		n.ID = id
	}
	if name, ok := n.Properties["name"].(string); ok {
		n.Name = name
	}
	delete(n.Properties, "id")
	delete(n.Properties, "name")
	return n, nil
}

func recordToEdge(rec *neo4j.Record) (*domain.Edge, error) {
	e := &domain.Edge{}
	if v, ok := rec.Get("id"); ok {
		e.ID, _ = v.(string)
	}
	if v, ok := rec.Get("type"); ok {
		e.Type = domain.EdgeType(strings.ToLower(fmt.Sprint(v)))
	}
	if v, ok := rec.Get("source"); ok {
		e.Source, _ = v.(string)
	}
	if v, ok := rec.Get("target"); ok {
		e.Target, _ = v.(string)
	}
	if v, ok := rec.Get("props"); ok {
		if props, isMap := v.(map[string]any); isMap {
			e.Properties = mergeProperties(nil, props)
			delete(e.Properties, "id")
		}
	}
	if !e.Type.Valid() {
		return nil, fmt.Errorf("edge %s: unknown relationship type", e.ID)
	}
	return e, nil
}
