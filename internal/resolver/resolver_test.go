package resolver

import (
	"context"
	"testing"

	"github.com/opsgraph/opsgraph-backend/internal/cache"
	"github.com/opsgraph/opsgraph-backend/internal/domain"
	"github.com/opsgraph/opsgraph-backend/internal/graph"
	"github.com/opsgraph/opsgraph-backend/internal/platform/logger"
	"github.com/opsgraph/opsgraph-backend/internal/query"
)

// countingStore counts node lookups so cache behavior is observable.
type countingStore struct {
	graph.Store
	gets int
}

func (c *countingStore) GetNode(ctx context.Context, id string) (*domain.Node, error) {
	c.gets++
	return c.Store.GetNode(ctx, id)
}

func newTestResolver(t *testing.T, c cache.Cache) (*Resolver, *countingStore) {
	t.Helper()
	ctx := context.Background()
	mem := graph.NewMemoryStore()

	nodes := []domain.Node{
		{ID: "service:api-gateway", Type: domain.NodeService, Name: "api-gateway"},
		{ID: "service:order-service", Type: domain.NodeService, Name: "order-service"},
		{ID: "database:orders-db", Type: domain.NodeDatabase, Name: "orders-db"},
		{ID: "team:orders-team", Type: domain.NodeTeam, Name: "orders-team"},
	}
	for _, n := range nodes {
		if err := mem.UpsertNode(ctx, n); err != nil {
			t.Fatalf("seed node: %v", err)
		}
	}
	edges := []domain.Edge{
		{ID: "edge:api-gateway-calls-order-service", Type: domain.EdgeCalls, Source: "service:api-gateway", Target: "service:order-service"},
		{ID: "edge:order-service-reads_writes-orders-db", Type: domain.EdgeReadsWrite, Source: "service:order-service", Target: "database:orders-db"},
		{ID: "edge:orders-team-owns-order-service", Type: domain.EdgeOwns, Source: "team:orders-team", Target: "service:order-service"},
		{ID: "edge:orders-team-owns-orders-db", Type: domain.EdgeOwns, Source: "team:orders-team", Target: "database:orders-db"},
	}
	for _, e := range edges {
		if err := mem.UpsertEdge(ctx, e); err != nil {
			t.Fatalf("seed edge: %v", err)
		}
	}

	store := &countingStore{Store: mem}
	engine, err := query.NewEngine(store, logger.NewNop(), 0)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	r, err := New(engine, c, logger.NewNop())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return r, store
}

func TestResolveGetOwner(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	sess := NewSession()

	res, err := r.Resolve(context.Background(), domain.Intent{
		Kind: domain.IntentGetOwner, EntityName: "orders-db", EntityType: domain.NodeDatabase,
	}, sess)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Kind != domain.ResultNode || res.Node == nil || res.Node.ID != "team:orders-team" {
		t.Fatalf("expected orders-team, got %+v", res)
	}

	if sess.Context.LastEntityName != "orders-db" || sess.Context.LastIntent != domain.IntentGetOwner {
		t.Fatalf("context not updated: %+v", sess.Context)
	}
}

func TestResolveFollowUpRepeatsLastIntent(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	sess := NewSession()
	sess.Context = domain.Context{
		LastEntityName: "order-service",
		LastEntityType: domain.NodeService,
		LastIntent:     domain.IntentDownstream,
	}

	res, err := r.Resolve(context.Background(), domain.Intent{Kind: domain.IntentFollowUp}, sess)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Kind != domain.ResultNodeList {
		t.Fatalf("expected node list, got %s", res.Kind)
	}
	if len(res.Nodes) != 1 || res.Nodes[0].ID != "database:orders-db" {
		t.Fatalf("expected downstream of order-service, got %v", res.Nodes)
	}
	// The effective kind is recorded, not the follow_up alias.
	if sess.Context.LastIntent != domain.IntentDownstream {
		t.Fatalf("expected effective kind in context, got %s", sess.Context.LastIntent)
	}
}

func TestResolveFollowUpWithNewEntity(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	sess := NewSession()
	sess.Context = domain.Context{
		LastEntityName: "order-service",
		LastEntityType: domain.NodeService,
		LastIntent:     domain.IntentGetOwner,
	}

	res, err := r.Resolve(context.Background(), domain.Intent{
		Kind: domain.IntentFollowUp, EntityName: "orders-db", EntityType: domain.NodeDatabase,
	}, sess)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Node == nil || res.Node.ID != "team:orders-team" {
		t.Fatalf("classifier-supplied entity should win over context, got %+v", res)
	}
	if sess.Context.LastEntityName != "orders-db" {
		t.Fatalf("context should hold this turn's entity, got %+v", sess.Context)
	}
}

func TestResolveUnknownRecoversFromContext(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	sess := NewSession()
	sess.Context = domain.Context{
		LastEntityName: "order-service",
		LastEntityType: domain.NodeService,
		LastIntent:     domain.IntentUpstream,
	}

	res, err := r.Resolve(context.Background(), domain.Intent{Kind: domain.IntentUnknown}, sess)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Kind != domain.ResultNodeList {
		t.Fatalf("expected a repeated upstream query, got %s", res.Kind)
	}
	if len(res.Nodes) != 1 || res.Nodes[0].ID != "service:api-gateway" {
		t.Fatalf("expected upstream of order-service, got %v", res.Nodes)
	}
}

func TestResolveUnknownWithoutContextClarifies(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	sess := NewSession()

	res, err := r.Resolve(context.Background(), domain.Intent{Kind: domain.IntentUnknown}, sess)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Kind != domain.ResultClarification {
		t.Fatalf("expected clarification, got %s", res.Kind)
	}
	if !sess.Context.Empty() {
		t.Fatalf("clarification must not touch the context, got %+v", sess.Context)
	}
}

func TestResolvePathDefaultsFromEntity(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	sess := NewSession()

	res, err := r.Resolve(context.Background(), domain.Intent{
		Kind:       domain.IntentPath,
		EntityName: "api-gateway",
		EntityType: domain.NodeService,
		Path:       &domain.PathSpec{ToType: domain.NodeDatabase, ToName: "orders-db"},
	}, sess)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"service:api-gateway", "service:order-service", "database:orders-db"}
	if len(res.Path) != len(want) {
		t.Fatalf("expected %v, got %v", want, res.Path)
	}
	for i := range want {
		if res.Path[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, res.Path)
		}
	}
}

func TestResolvePathUnresolvedFields(t *testing.T) {
	r, store := newTestResolver(t, nil)
	sess := NewSession()
	before := store.gets

	res, err := r.Resolve(context.Background(), domain.Intent{
		Kind: domain.IntentPath,
		Path: &domain.PathSpec{ToType: domain.NodeDatabase, ToName: "orders-db"},
	}, sess)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Kind != domain.ResultPath || len(res.Path) != 0 {
		t.Fatalf("expected an empty path result, got %+v", res)
	}
	if store.gets != before {
		t.Fatalf("traversal engine must not be called with unresolved endpoints")
	}
}

func TestResolveCacheHitSkipsEngine(t *testing.T) {
	r, store := newTestResolver(t, cache.NewMemory())
	sess := NewSession()
	intent := domain.Intent{
		Kind: domain.IntentBlastRadius, EntityName: "order-service", EntityType: domain.NodeService,
	}

	if _, err := r.Resolve(context.Background(), intent, sess); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	after := store.gets

	res, err := r.Resolve(context.Background(), intent, sess)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if store.gets != after {
		t.Fatalf("cache hit should not reach the store (%d lookups after hit)", store.gets-after)
	}
	if res.Blast == nil || len(res.Blast.Teams) != 1 {
		t.Fatalf("cached result should round-trip intact, got %+v", res)
	}
}

func TestResolveListNodes(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	sess := NewSession()

	res, err := r.Resolve(context.Background(), domain.Intent{
		Kind: domain.IntentListNodes, EntityType: domain.NodeService,
	}, sess)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Nodes) != 2 {
		t.Fatalf("expected the 2 services, got %v", res.Nodes)
	}
}

func TestResolveOwnerNotFoundIsNormal(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	sess := NewSession()

	res, err := r.Resolve(context.Background(), domain.Intent{
		Kind: domain.IntentGetOwner, EntityName: "api-gateway", EntityType: domain.NodeService,
	}, sess)
	if err != nil {
		t.Fatalf("not found must not be an error: %v", err)
	}
	if res.Kind != domain.ResultNode || res.Node != nil {
		t.Fatalf("expected an empty node result, got %+v", res)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	a, b := NewSession(), NewSession()

	if _, err := r.Resolve(context.Background(), domain.Intent{
		Kind: domain.IntentDownstream, EntityName: "api-gateway", EntityType: domain.NodeService,
	}, a); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if !b.Context.Empty() {
		t.Fatalf("one session's turn leaked into another: %+v", b.Context)
	}
	if a.Context.LastEntityName != "api-gateway" {
		t.Fatalf("expected context on the resolving session, got %+v", a.Context)
	}
}
