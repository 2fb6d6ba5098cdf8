package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/opsgraph/opsgraph-backend/internal/graph"
	"github.com/opsgraph/opsgraph-backend/internal/ingest"
	"github.com/opsgraph/opsgraph-backend/internal/observability"
	"github.com/opsgraph/opsgraph-backend/internal/platform/envutil"
	"github.com/opsgraph/opsgraph-backend/internal/platform/logger"
	"github.com/opsgraph/opsgraph-backend/internal/platform/neo4jdb"
)

// ingest is the offline batch loader: it normalizes the configured source
// documents into canonical nodes and edges and commits them to the graph
// store. Exit code 1 means the run itself failed; 2 means it completed but
// some records were rejected.
func main() {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), envutil.Duration("INGEST_TIMEOUT", 5*time.Minute))
	defer cancel()

	shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "opsgraph-ingest",
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

	pipeline, err := ingest.NewPipeline(store, log)
	if err != nil {
		log.Error("pipeline init failed", "error", err)
		os.Exit(1)
	}

	report, err := pipeline.Run(ctx,
		ingest.NewComposeConnector(envutil.String("COMPOSE_PATH", "./data/docker-compose.yml")),
		ingest.NewTeamsConnector(envutil.String("TEAMS_PATH", "./data/teams.yaml")),
	)
	if err != nil {
		log.Error("ingestion failed", "error", err)
		os.Exit(1)
	}
	if report.Issues != nil {
		log.Warn("ingestion finished with rejected records", "error", report.Issues)
		os.Exit(2)
	}
}

func openStore(ctx context.Context, log *logger.Logger) (graph.Store, error) {
	client, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		return nil, err
	}
	if client == nil {
		log.Warn("NEO4J_URI not set, using in-memory store; data will not survive the process")
		return graph.NewMemoryStore(), nil
	}

	store, err := graph.NewNeo4jStore(client, log)
	if err != nil {
		return nil, err
	}
	store.EnsureSchema(ctx)
	return store, nil
}
