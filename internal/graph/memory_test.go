package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/opsgraph/opsgraph-backend/internal/domain"
	apperrors "github.com/opsgraph/opsgraph-backend/internal/pkg/errors"
)

func TestUpsertNodeIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	node := domain.Node{
		ID:         "service:api-gateway",
		Type:       domain.NodeService,
		Name:       "api-gateway",
		Properties: map[string]any{"port": 8080},
	}
	if err := s.UpsertNode(ctx, node); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertNode(ctx, node); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	all, err := s.GetNodesByType(ctx, domain.NodeService, nil)
	if err != nil {
		t.Fatalf("get nodes: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 node after double upsert, got %d", len(all))
	}
	if all[0].Properties["port"] != 8080 {
		t.Fatalf("expected port preserved, got %v", all[0].Properties["port"])
	}
}

func TestUpsertNodeMergesProperties(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.UpsertNode(ctx, domain.Node{
		ID: "service:auth", Type: domain.NodeService, Name: "auth",
		Properties: map[string]any{"port": 9000, "tier": "critical"},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertNode(ctx, domain.Node{
		ID: "service:auth", Type: domain.NodeService, Name: "auth",
		Properties: map[string]any{"port": 9001},
	}); err != nil {
		t.Fatalf("merge upsert: %v", err)
	}

	got, err := s.GetNode(ctx, "service:auth")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Properties["port"] != 9001 {
		t.Fatalf("provided key should overwrite, got %v", got.Properties["port"])
	}
	if got.Properties["tier"] != "critical" {
		t.Fatalf("absent key should be preserved, got %v", got.Properties["tier"])
	}
}

func TestGetNodeAbsent(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.GetNode(context.Background(), "service:nope")
	if err != nil {
		t.Fatalf("absent id must not error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for absent id, got %v", got)
	}
}

func TestGetNodesByTypeFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	seed := []domain.Node{
		{ID: "service:a", Type: domain.NodeService, Name: "a", Properties: map[string]any{"tier": "critical"}},
		{ID: "service:b", Type: domain.NodeService, Name: "b", Properties: map[string]any{"tier": "standard"}},
		{ID: "database:a-db", Type: domain.NodeDatabase, Name: "a-db"},
	}
	for _, n := range seed {
		if err := s.UpsertNode(ctx, n); err != nil {
			t.Fatalf("seed %s: %v", n.ID, err)
		}
	}

	services, err := s.GetNodesByType(ctx, domain.NodeService, nil)
	if err != nil {
		t.Fatalf("by type: %v", err)
	}
	if len(services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(services))
	}

	critical, err := s.GetNodesByType(ctx, domain.NodeService, map[string]any{"tier": "critical"})
	if err != nil {
		t.Fatalf("filtered: %v", err)
	}
	if len(critical) != 1 || critical[0].ID != "service:a" {
		t.Fatalf("expected only service:a, got %v", critical)
	}

	everything, err := s.GetNodesByType(ctx, "", nil)
	if err != nil {
		t.Fatalf("all types: %v", err)
	}
	if len(everything) != 3 {
		t.Fatalf("empty type should match all, got %d", len(everything))
	}
}

func TestUpsertEdgeRequiresEndpoints(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.UpsertNode(ctx, domain.Node{ID: "service:a", Type: domain.NodeService, Name: "a"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := s.UpsertEdge(ctx, domain.Edge{
		ID: "edge:a-calls-ghost", Type: domain.EdgeCalls,
		Source: "service:a", Target: "service:ghost",
	})
	var integrity *apperrors.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if integrity.MissingNode != "service:ghost" {
		t.Fatalf("expected missing node identified, got %q", integrity.MissingNode)
	}
}

func TestUpsertEdgeIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, n := range []string{"a", "b"} {
		if err := s.UpsertNode(ctx, domain.Node{ID: "service:" + n, Type: domain.NodeService, Name: n}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	edge := domain.Edge{ID: "edge:a-calls-b", Type: domain.EdgeCalls, Source: "service:a", Target: "service:b"}
	if err := s.UpsertEdge(ctx, edge); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertEdge(ctx, edge); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	out, err := s.Outgoing(ctx, "service:a")
	if err != nil {
		t.Fatalf("outgoing: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 edge after double upsert, got %d", len(out))
	}
}

func TestDeleteNodeCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, n := range []string{"a", "b", "c"} {
		if err := s.UpsertNode(ctx, domain.Node{ID: "service:" + n, Type: domain.NodeService, Name: n}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	edges := []domain.Edge{
		{ID: "edge:a-calls-b", Type: domain.EdgeCalls, Source: "service:a", Target: "service:b"},
		{ID: "edge:b-calls-c", Type: domain.EdgeCalls, Source: "service:b", Target: "service:c"},
	}
	for _, e := range edges {
		if err := s.UpsertEdge(ctx, e); err != nil {
			t.Fatalf("seed edge: %v", err)
		}
	}

	if err := s.DeleteNode(ctx, "service:b"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got, _ := s.GetNode(ctx, "service:b"); got != nil {
		t.Fatalf("node should be gone")
	}
	out, _ := s.Outgoing(ctx, "service:a")
	if len(out) != 0 {
		t.Fatalf("edge into deleted node should be gone, got %v", out)
	}
	in, _ := s.Incoming(ctx, "service:c")
	if len(in) != 0 {
		t.Fatalf("edge out of deleted node should be gone, got %v", in)
	}
}

func TestEdgesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, n := range []string{"hub", "x", "y", "z"} {
		if err := s.UpsertNode(ctx, domain.Node{ID: "service:" + n, Type: domain.NodeService, Name: n}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	for _, target := range []string{"x", "y", "z"} {
		if err := s.UpsertEdge(ctx, domain.Edge{
			ID: "edge:hub-calls-" + target, Type: domain.EdgeCalls,
			Source: "service:hub", Target: "service:" + target,
		}); err != nil {
			t.Fatalf("seed edge: %v", err)
		}
	}

	out, err := s.Outgoing(ctx, "service:hub")
	if err != nil {
		t.Fatalf("outgoing: %v", err)
	}
	want := []string{"service:x", "service:y", "service:z"}
	for i, e := range out {
		if e.Target != want[i] {
			t.Fatalf("edge %d: expected %s, got %s", i, want[i], e.Target)
		}
	}
}

func TestGetNodeReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.UpsertNode(ctx, domain.Node{
		ID: "service:a", Type: domain.NodeService, Name: "a",
		Properties: map[string]any{"tier": "critical"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, _ := s.GetNode(ctx, "service:a")
	got.Properties["tier"] = "mutated"

	again, _ := s.GetNode(ctx, "service:a")
	if again.Properties["tier"] != "critical" {
		t.Fatalf("caller mutation leaked into the store")
	}
}
