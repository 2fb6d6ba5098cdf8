package ingest

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opsgraph/opsgraph-backend/internal/domain"
	apperrors "github.com/opsgraph/opsgraph-backend/internal/pkg/errors"
)

// Reference patterns found in configuration values: plain http(s) URLs,
// cache-protocol URLs, and user@host:port DSNs.
var (
	httpRefPattern  = regexp.MustCompile(`https?://([a-zA-Z0-9-]+)`)
	cacheRefPattern = regexp.MustCompile(`redis://([a-zA-Z0-9-]+)`)
	dsnRefPattern   = regexp.MustCompile(`@([a-zA-Z0-9-]+):\d+`)
)

// ComposeConnector reads a multi-service workload configuration document
// (docker-compose format). Entity types are inferred from naming convention,
// metadata labels, and image identifiers; dependency edges come from
// connection strings embedded in environment values. References to names
// outside the document are dropped, never synthesized into nodes.
type ComposeConnector struct {
	Path string
}

func NewComposeConnector(path string) *ComposeConnector {
	return &ComposeConnector{Path: path}
}

func (c *ComposeConnector) Name() string { return "workload-config" }

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image       string            `yaml:"image"`
	Labels      map[string]string `yaml:"labels"`
	Environment envEntries        `yaml:"environment"`
	Ports       []string          `yaml:"ports"`
}

// envEntries accepts both compose environment forms: a sequence of KEY=VALUE
// strings and a mapping.
type envEntries []string

func (e *envEntries) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var seq []string
		if err := value.Decode(&seq); err != nil {
			return err
		}
		*e = seq
		return nil
	case yaml.MappingNode:
		var m map[string]string
		if err := value.Decode(&m); err != nil {
			return err
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]string, 0, len(m))
		for _, k := range keys {
			out = append(out, k+"="+m[k])
		}
		*e = out
		return nil
	}
	return fmt.Errorf("environment: unsupported YAML node kind %d", value.Kind)
}

func (c *ComposeConnector) Parse(ctx context.Context) ([]domain.Node, []domain.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	raw, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, nil, &apperrors.ParseError{Connector: c.Name(), Err: err}
	}
	var doc composeFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, &apperrors.ParseError{Connector: c.Name(), Err: err}
	}

	names := make([]string, 0, len(doc.Services))
	for name := range doc.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	nodes := make([]domain.Node, 0, len(doc.Services))
	index := make(map[string]domain.Node, len(doc.Services))
	for _, name := range names {
		cfg := doc.Services[name]
		node := serviceNode(name, cfg)
		nodes = append(nodes, node)
		index[name] = node
	}

	var edges []domain.Edge
	for _, name := range names {
		cfg := doc.Services[name]
		source := index[name]

		for _, ref := range extractRefs(cfg.Environment) {
			target, known := index[ref]
			if !known {
				continue // external reference, never synthesized
			}
			edgeType := edgeTypeForTarget(target.Type)
			edges = append(edges, domain.Edge{
				ID:         fmt.Sprintf("edge:%s-%s-%s", name, edgeType, ref),
				Type:       edgeType,
				Source:     source.ID,
				Target:     target.ID,
				Properties: map[string]any{},
			})
		}
	}

	return nodes, edges, nil
}

func serviceNode(name string, cfg composeService) domain.Node {
	ntype := inferNodeType(name, cfg)

	properties := map[string]any{}
	if len(cfg.Ports) > 0 {
		// Best-effort: the host side of the first published port.
		if host, _, found := strings.Cut(cfg.Ports[0], ":"); found {
			if port, err := strconv.Atoi(host); err == nil {
				properties["port"] = port
			}
		}
	}
	for k, v := range cfg.Labels {
		properties[k] = v
	}

	return domain.Node{
		ID:         domain.NodeID(ntype, name),
		Type:       ntype,
		Name:       name,
		Properties: properties,
	}
}

func inferNodeType(name string, cfg composeService) domain.NodeType {
	if cfg.Labels["type"] == "database" || strings.HasSuffix(name, "-db") {
		return domain.NodeDatabase
	}
	if cfg.Labels["type"] == "cache" || strings.Contains(cfg.Image, "redis") {
		return domain.NodeCache
	}
	return domain.NodeService
}

// edgeTypeForTarget picks the relationship kind from the target's resolved
// type: a database is read and written, a cache is used, anything else is
// called.
func edgeTypeForTarget(target domain.NodeType) domain.EdgeType {
	switch target {
	case domain.NodeDatabase:
		return domain.EdgeReadsWrite
	case domain.NodeCache:
		return domain.EdgeUses
	}
	return domain.EdgeCalls
}

// extractRefs pulls service names referenced by URLs or DSNs in environment
// values, deduplicated and sorted for deterministic output.
func extractRefs(env []string) []string {
	set := map[string]bool{}
	for _, entry := range env {
		for _, pattern := range []*regexp.Regexp{httpRefPattern, cacheRefPattern, dsnRefPattern} {
			if m := pattern.FindStringSubmatch(entry); m != nil {
				set[m[1]] = true
			}
		}
	}
	refs := make([]string, 0, len(set))
	for ref := range set {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
