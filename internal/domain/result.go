package domain

// ResultKind tags the shape of a resolved query result so the presenter
// can render it without inspecting the payload.
type ResultKind string

const (
	ResultNode          ResultKind = "node"
	ResultNodeList      ResultKind = "node_list"
	ResultPath          ResultKind = "path"
	ResultBlastRadius   ResultKind = "blast_radius"
	ResultClarification ResultKind = "clarification"
)

// BlastRadius is the aggregate impact of a node failing: everything it
// depends on, everything that depends on it, and the owning teams of all of
// those plus the node itself.
type BlastRadius struct {
	Node       string `json:"node"`
	Downstream []Node `json:"downstream"`
	Upstream   []Node `json:"upstream"`
	Teams      []Node `json:"teams"`
}

// Result is the typed union handed to the presenter. Exactly the fields
// implied by Kind are set; the presenter owns all rendering.
type Result struct {
	Kind    ResultKind   `json:"kind"`
	Node    *Node        `json:"node,omitempty"`
	Nodes   []Node       `json:"nodes,omitempty"`
	Path    []string     `json:"path,omitempty"`
	Blast   *BlastRadius `json:"blast_radius,omitempty"`
	Message string       `json:"message,omitempty"`
}

// NodeResult wraps a single node lookup; a nil node means not found, which
// is a normal empty result rather than an error.
func NodeResult(n *Node) Result {
	return Result{Kind: ResultNode, Node: n}
}

func NodeListResult(nodes []Node) Result {
	return Result{Kind: ResultNodeList, Nodes: nodes}
}

func PathResult(ids []string) Result {
	return Result{Kind: ResultPath, Path: ids}
}

func BlastRadiusResult(b *BlastRadius) Result {
	return Result{Kind: ResultBlastRadius, Blast: b}
}

func ClarificationResult(msg string) Result {
	return Result{Kind: ResultClarification, Message: msg}
}
