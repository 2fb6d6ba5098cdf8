package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/opsgraph/opsgraph-backend/internal/cache"
	"github.com/opsgraph/opsgraph-backend/internal/domain"
	"github.com/opsgraph/opsgraph-backend/internal/graph"
	"github.com/opsgraph/opsgraph-backend/internal/observability"
	"github.com/opsgraph/opsgraph-backend/internal/platform/envutil"
	"github.com/opsgraph/opsgraph-backend/internal/platform/logger"
	"github.com/opsgraph/opsgraph-backend/internal/platform/neo4jdb"
	"github.com/opsgraph/opsgraph-backend/internal/query"
	"github.com/opsgraph/opsgraph-backend/internal/resolver"
)

// query is a line-oriented front end for the intent resolver: one classified
// intent as JSON per stdin line, one result as JSON per stdout line. All
// turns of one invocation share a single session, so follow-ups work the
// same way they do behind the chat surface.
func main() {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "opsgraph-query",
		Environment: envutil.String("APP_ENV", "development"),
	})
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	store, err := openStore(ctx, log)
	if err != nil {
		log.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close(context.Background()) }()

	engine, err := query.NewEngine(store, log, envutil.Int("MAX_TRAVERSAL_DEPTH", 0))
	if err != nil {
		log.Error("engine init failed", "error", err)
		os.Exit(1)
	}

	res, err := resolver.New(engine, openCache(log), log)
	if err != nil {
		log.Error("resolver init failed", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, res, os.Stdin, os.Stdout); err != nil {
		log.Error("query loop failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, res *resolver.Resolver, in *os.File, out *os.File) error {
	sess := resolver.NewSession()
	enc := json.NewEncoder(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var intent domain.Intent
		if err := json.Unmarshal(line, &intent); err != nil {
			if encErr := enc.Encode(domain.ClarificationResult("I could not read that request. Send one intent as a JSON object per line.")); encErr != nil {
				return encErr
			}
			continue
		}

		result, err := res.Resolve(ctx, intent, sess)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", intent.Kind, err)
		}
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func openStore(ctx context.Context, log *logger.Logger) (graph.Store, error) {
	client, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		return nil, err
	}
	if client == nil {
		log.Warn("NEO4J_URI not set, using an empty in-memory store; run ingest against Neo4j for real data")
		return graph.NewMemoryStore(), nil
	}

	store, err := graph.NewNeo4jStore(client, log)
	if err != nil {
		return nil, err
	}
	store.EnsureSchema(ctx)
	return store, nil
}

func openCache(log *logger.Logger) cache.Cache {
	redis, err := cache.NewRedisFromEnv(log)
	if err != nil {
		log.Warn("redis cache unavailable, using in-process cache", "error", err)
		return cache.NewMemory()
	}
	if redis == nil {
		return cache.NewMemory()
	}
	return redis
}
