package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opsgraph/opsgraph-backend/internal/domain"
	apperrors "github.com/opsgraph/opsgraph-backend/internal/pkg/errors"
)

// TeamsConnector reads the ownership manifest: organizational units, each
// declaring a name, contact metadata, and the resource names it owns. Owned
// resources are classified by name-suffix heuristic and linked with an owns
// edge.
type TeamsConnector struct {
	Path string
}

func NewTeamsConnector(path string) *TeamsConnector {
	return &TeamsConnector{Path: path}
}

func (c *TeamsConnector) Name() string { return "ownership-manifest" }

type teamsFile struct {
	Teams []teamEntry `yaml:"teams"`
}

type teamEntry struct {
	Name      string   `yaml:"name"`
	Lead      string   `yaml:"lead"`
	Slack     string   `yaml:"slack_channel"`
	PagerDuty string   `yaml:"pagerduty_schedule"`
	Owns      []string `yaml:"owns"`
}

func (c *TeamsConnector) Parse(ctx context.Context) ([]domain.Node, []domain.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	raw, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, nil, &apperrors.ParseError{Connector: c.Name(), Err: err}
	}
	var doc teamsFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, &apperrors.ParseError{Connector: c.Name(), Err: err}
	}

	var nodes []domain.Node
	var edges []domain.Edge
	for _, t := range doc.Teams {
		if strings.TrimSpace(t.Name) == "" {
			continue // skip invalid entries
		}
		slug := slugify(t.Name)

		properties := map[string]any{}
		if t.Lead != "" {
			properties["lead"] = t.Lead
		}
		if t.Slack != "" {
			properties["slack"] = t.Slack
		}
		if t.PagerDuty != "" {
			properties["pagerduty"] = t.PagerDuty
		}

		teamID := domain.NodeID(domain.NodeTeam, slug)
		nodes = append(nodes, domain.Node{
			ID:         teamID,
			Type:       domain.NodeTeam,
			Name:       t.Name, // human-readable
			Properties: properties,
		})

		for _, owned := range t.Owns {
			edges = append(edges, domain.Edge{
				ID:         fmt.Sprintf("edge:%s-owns-%s", slug, owned),
				Type:       domain.EdgeOwns,
				Source:     teamID,
				Target:     domain.NodeID(classifyOwned(owned), owned),
				Properties: map[string]any{},
			})
		}
	}

	return nodes, edges, nil
}

func slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// classifyOwned guesses the resource's entity type from its name, mirroring
// the workload-config inference.
func classifyOwned(name string) domain.NodeType {
	lc := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lc, "-db"):
		return domain.NodeDatabase
	case strings.HasSuffix(lc, "-cache"), strings.Contains(lc, "redis"):
		return domain.NodeCache
	}
	return domain.NodeService
}
