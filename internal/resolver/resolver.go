package resolver

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opsgraph/opsgraph-backend/internal/cache"
	"github.com/opsgraph/opsgraph-backend/internal/domain"
	"github.com/opsgraph/opsgraph-backend/internal/platform/logger"
	"github.com/opsgraph/opsgraph-backend/internal/query"
)

const (
	msgNeedSubject = "I need an entity to work with. Which service, database, cache, or team do you mean?"
	msgNeedIntent  = "I could not tell what you want to know about that entity. Try asking for its owner, dependencies, or blast radius."
)

// Resolver turns one classified intent plus the session's prior-turn context
// into exactly one graph operation, reading through the query cache where
// the operation is cacheable.
type Resolver struct {
	engine *query.Engine
	cache  cache.Cache
	log    *logger.Logger
	tracer trace.Tracer
}

func New(engine *query.Engine, c cache.Cache, log *logger.Logger) (*Resolver, error) {
	if engine == nil {
		return nil, fmt.Errorf("resolver: engine required")
	}
	if log == nil {
		return nil, fmt.Errorf("resolver: logger required")
	}
	return &Resolver{
		engine: engine,
		cache:  c,
		log:    log.With("service", "IntentResolver"),
		tracer: otel.Tracer("opsgraph/resolver"),
	}, nil
}

// Resolve dispatches one turn. The session context is overwritten with the
// turn's entity and the effective intent kind after every dispatched
// operation, so the next turn can chain; a clarification leaves it alone.
func (r *Resolver) Resolve(ctx context.Context, intent domain.Intent, sess *Session) (domain.Result, error) {
	if sess == nil {
		return domain.Result{}, fmt.Errorf("resolver: session required")
	}

	ctx, span := r.tracer.Start(ctx, "resolver.resolve",
		trace.WithAttributes(
			attribute.String("session.id", sess.ID.String()),
			attribute.String("intent.kind", string(intent.Kind)),
		))
	defer span.End()

	effective, ok := r.resolveEffective(intent, &sess.Context)
	if !ok {
		return domain.ClarificationResult(msgNeedSubject), nil
	}

	result, err := r.dispatch(ctx, effective)
	if err != nil {
		return domain.Result{}, err
	}
	if result.Kind == domain.ResultClarification {
		return result, nil
	}

	sess.Context = domain.Context{
		LastEntityName: effective.EntityName,
		LastEntityType: effective.EntityType,
		LastIntent:     effective.Kind,
	}
	return result, nil
}

// resolveEffective applies the follow-up and unknown recovery rules:
// an unknown turn with prior context repeats the last intent against the
// last entity, and a follow-up turn substitutes the last intent, defaulting
// entity fields from context when the classifier supplied none.
func (r *Resolver) resolveEffective(intent domain.Intent, conv *domain.Context) (domain.Intent, bool) {
	switch intent.Kind {
	case domain.IntentUnknown:
		if conv.Empty() || !dispatchable(conv.LastIntent) {
			return domain.Intent{}, false
		}
		intent.Kind = conv.LastIntent
		intent.EntityName = conv.LastEntityName
		intent.EntityType = conv.LastEntityType
		return intent, true

	case domain.IntentFollowUp:
		if conv.Empty() || !dispatchable(conv.LastIntent) {
			return domain.Intent{}, false
		}
		intent.Kind = conv.LastIntent
		if intent.EntityName == "" {
			intent.EntityName = conv.LastEntityName
			intent.EntityType = conv.LastEntityType
		}
		return intent, true

	default:
		return intent, true
	}
}

func dispatchable(kind domain.IntentKind) bool {
	switch kind {
	case domain.IntentGetOwner, domain.IntentGetOwnedByTeam, domain.IntentListNodes,
		domain.IntentDownstream, domain.IntentUpstream, domain.IntentBlastRadius, domain.IntentPath:
		return true
	}
	return false
}

func (r *Resolver) dispatch(ctx context.Context, intent domain.Intent) (domain.Result, error) {
	switch intent.Kind {
	case domain.IntentPath:
		return r.dispatchPath(ctx, intent)
	case domain.IntentListNodes:
		return r.cached(ctx, intent, func(ctx context.Context) (domain.Result, error) {
			nodes, err := r.engine.ListNodes(ctx, intent.EntityType, nil)
			if err != nil {
				return domain.Result{}, err
			}
			return domain.NodeListResult(nodes), nil
		})
	}

	// Everything below needs a concrete subject.
	if intent.EntityName == "" {
		return domain.ClarificationResult(msgNeedSubject), nil
	}

	switch intent.Kind {
	case domain.IntentGetOwner:
		if intent.EntityType == "" {
			return domain.ClarificationResult(msgNeedSubject), nil
		}
		return r.cached(ctx, intent, func(ctx context.Context) (domain.Result, error) {
			owner, err := r.engine.Owner(ctx, domain.NodeID(intent.EntityType, intent.EntityName))
			if err != nil {
				return domain.Result{}, err
			}
			return domain.NodeResult(owner), nil
		})

	case domain.IntentGetOwnedByTeam:
		return r.cached(ctx, intent, func(ctx context.Context) (domain.Result, error) {
			owned, err := r.engine.OwnedByTeam(ctx, domain.NodeID(domain.NodeTeam, intent.EntityName), intent.Filter)
			if err != nil {
				return domain.Result{}, err
			}
			return domain.NodeListResult(owned), nil
		})

	case domain.IntentDownstream:
		if intent.EntityType == "" {
			return domain.ClarificationResult(msgNeedSubject), nil
		}
		return r.cached(ctx, intent, func(ctx context.Context) (domain.Result, error) {
			nodes, err := r.engine.Downstream(ctx, domain.NodeID(intent.EntityType, intent.EntityName), intent.Filter, 0)
			if err != nil {
				return domain.Result{}, err
			}
			return domain.NodeListResult(nodes), nil
		})

	case domain.IntentUpstream:
		if intent.EntityType == "" {
			return domain.ClarificationResult(msgNeedSubject), nil
		}
		return r.cached(ctx, intent, func(ctx context.Context) (domain.Result, error) {
			nodes, err := r.engine.Upstream(ctx, domain.NodeID(intent.EntityType, intent.EntityName), intent.Filter, 0)
			if err != nil {
				return domain.Result{}, err
			}
			return domain.NodeListResult(nodes), nil
		})

	case domain.IntentBlastRadius:
		if intent.EntityType == "" {
			return domain.ClarificationResult(msgNeedSubject), nil
		}
		return r.cached(ctx, intent, func(ctx context.Context) (domain.Result, error) {
			blast, err := r.engine.BlastRadius(ctx, domain.NodeID(intent.EntityType, intent.EntityName), intent.Filter)
			if err != nil {
				return domain.Result{}, err
			}
			if blast == nil {
				blast = &domain.BlastRadius{Node: domain.NodeID(intent.EntityType, intent.EntityName)}
			}
			return domain.BlastRadiusResult(blast), nil
		})
	}

	return domain.ClarificationResult(msgNeedIntent), nil
}

// dispatchPath defaults the from endpoint to the turn's top-level entity
// when the classifier left it out. If any of the four endpoint fields remain
// unresolved the traversal engine is not called and an empty path comes
// back. Path queries are not cached: the cache key has no room for the
// second endpoint and a collision would serve the wrong route.
func (r *Resolver) dispatchPath(ctx context.Context, intent domain.Intent) (domain.Result, error) {
	var spec domain.PathSpec
	if intent.Path != nil {
		spec = *intent.Path
	}
	if spec.FromType == "" {
		spec.FromType = intent.EntityType
	}
	if spec.FromName == "" {
		spec.FromName = intent.EntityName
	}
	if spec.FromType == "" || spec.FromName == "" || spec.ToType == "" || spec.ToName == "" {
		return domain.PathResult(nil), nil
	}

	path, err := r.engine.ShortestPath(ctx,
		domain.NodeID(spec.FromType, spec.FromName),
		domain.NodeID(spec.ToType, spec.ToName))
	if err != nil {
		return domain.Result{}, err
	}
	return domain.PathResult(path), nil
}

// cached reads through the query cache. Cache trouble is never fatal: with
// no cache configured, or on a miss, the operation computes live and the
// result is stored for the next identical turn.
func (r *Resolver) cached(ctx context.Context, intent domain.Intent, compute func(context.Context) (domain.Result, error)) (domain.Result, error) {
	if r.cache == nil {
		return compute(ctx)
	}
	key := cache.Key{
		Op:         string(intent.Kind),
		EntityType: intent.EntityType,
		EntityName: intent.EntityName,
		Filter:     intent.Filter,
	}
	if res, ok := r.cache.Get(ctx, key); ok {
		r.log.Debug("query cache hit", "op", key.Op, "entity", key.EntityName)
		return res, nil
	}
	res, err := compute(ctx)
	if err != nil {
		return domain.Result{}, err
	}
	r.cache.Set(ctx, key, res)
	return res, nil
}
