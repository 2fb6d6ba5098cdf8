package ingest

import (
	"context"

	"github.com/opsgraph/opsgraph-backend/internal/domain"
)

// Connector turns one external source description into canonical node and
// edge records. Parse must be pure and deterministic: the same document
// always yields the same node and edge id sets, which is what makes
// re-ingestion idempotent. Connectors never write to the store themselves;
// the pipeline owns commit ordering.
type Connector interface {
	Name() string
	Parse(ctx context.Context) ([]domain.Node, []domain.Edge, error)
}
