package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/opsgraph/opsgraph-backend/internal/domain"
	"github.com/opsgraph/opsgraph-backend/internal/graph"
	apperrors "github.com/opsgraph/opsgraph-backend/internal/pkg/errors"
	"github.com/opsgraph/opsgraph-backend/internal/platform/logger"
)

// Pipeline runs connectors sequentially and commits their output. Within a
// single run every node from every connector is committed before any edge,
// because an edge may only be created once both endpoints exist. Ingestion
// is a single-writer batch process; it is not meant to run concurrently
// with itself.
type Pipeline struct {
	store graph.Store
	log   *logger.Logger
}

// Report summarizes one ingestion run. Issues carries the non-fatal
// failures: connector parse errors (that connector's records are skipped,
// others proceed) and per-edge integrity errors.
type Report struct {
	NodesUpserted int
	EdgesUpserted int
	Issues        error
}

func NewPipeline(store graph.Store, log *logger.Logger) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("ingest pipeline: store required")
	}
	if log == nil {
		return nil, fmt.Errorf("ingest pipeline: logger required")
	}
	return &Pipeline{store: store, log: log.With("service", "IngestPipeline")}, nil
}

func (p *Pipeline) Run(ctx context.Context, connectors ...Connector) (*Report, error) {
	report := &Report{}

	var allNodes []nodeRecord
	var allEdges []edgeRecord
	for _, c := range connectors {
		nodes, edges, err := c.Parse(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			p.log.Warn("connector failed, skipping its records", "connector", c.Name(), "error", err)
			report.Issues = multierr.Append(report.Issues, err)
			continue
		}
		p.log.Info("connector parsed", "connector", c.Name(), "nodes", len(nodes), "edges", len(edges))
		for _, n := range nodes {
			allNodes = append(allNodes, nodeRecord{connector: c.Name(), node: n})
		}
		for _, e := range edges {
			allEdges = append(allEdges, edgeRecord{connector: c.Name(), edge: e})
		}
	}

	for _, rec := range allNodes {
		if err := p.store.UpsertNode(ctx, rec.node); err != nil {
			return report, fmt.Errorf("commit node %s (connector %s): %w", rec.node.ID, rec.connector, err)
		}
		report.NodesUpserted++
	}

	for _, rec := range allEdges {
		err := p.store.UpsertEdge(ctx, rec.edge)
		if err == nil {
			report.EdgesUpserted++
			continue
		}
		var integrity *apperrors.IntegrityError
		if errors.As(err, &integrity) {
			p.log.Warn("edge rejected", "connector", rec.connector, "edge", integrity.EdgeID, "missing", integrity.MissingNode)
			report.Issues = multierr.Append(report.Issues, err)
			continue
		}
		return report, fmt.Errorf("commit edge %s (connector %s): %w", rec.edge.ID, rec.connector, err)
	}

	p.log.Info("ingestion complete",
		"nodes", report.NodesUpserted,
		"edges", report.EdgesUpserted,
		"issues", len(multierr.Errors(report.Issues)))
	return report, nil
}

type nodeRecord struct {
	connector string
	node      domain.Node
}

type edgeRecord struct {
	connector string
	edge      domain.Edge
}
