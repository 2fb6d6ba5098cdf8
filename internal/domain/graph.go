package domain

import "fmt"

// NodeType is the closed set of entity kinds the graph tracks.
type NodeType string

const (
	NodeService  NodeType = "service"
	NodeDatabase NodeType = "database"
	NodeCache    NodeType = "cache"
	NodeTeam     NodeType = "team"
)

func (t NodeType) Valid() bool {
	switch t {
	case NodeService, NodeDatabase, NodeCache, NodeTeam:
		return true
	}
	return false
}

// EdgeType is the closed set of relationship kinds.
type EdgeType string

const (
	EdgeCalls      EdgeType = "calls"
	EdgeReadsWrite EdgeType = "reads_writes"
	EdgeUses       EdgeType = "uses"
	EdgeOwns       EdgeType = "owns"
)

func (t EdgeType) Valid() bool {
	switch t {
	case EdgeCalls, EdgeReadsWrite, EdgeUses, EdgeOwns:
		return true
	}
	return false
}

// NodeID derives the canonical node id from type and name. Re-deriving from
// the same inputs always yields the same id, which is what makes ingestion
// idempotent.
func NodeID(t NodeType, name string) string {
	return fmt.Sprintf("%s:%s", t, name)
}

// Node is a typed graph entity (service, database, cache, team).
type Node struct {
	ID         string         `json:"id"`
	Type       NodeType       `json:"type"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Edge is a typed directed relationship between two existing nodes.
type Edge struct {
	ID         string         `json:"id"`
	Type       EdgeType       `json:"type"`
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Properties map[string]any `json:"properties,omitempty"`
}
