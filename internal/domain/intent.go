package domain

// IntentKind is the set of structured intents the upstream classifier can
// emit. The classifier itself lives outside this service; we only trust its
// output shape.
type IntentKind string

const (
	IntentGetOwner       IntentKind = "get_owner"
	IntentGetOwnedByTeam IntentKind = "get_owned_by_team"
	IntentListNodes      IntentKind = "list_nodes"
	IntentDownstream     IntentKind = "downstream"
	IntentUpstream       IntentKind = "upstream"
	IntentBlastRadius    IntentKind = "blast_radius"
	IntentPath           IntentKind = "path"
	IntentFollowUp       IntentKind = "follow_up"
	IntentUnknown        IntentKind = "unknown"
)

// PathSpec names the two endpoints of a path query.
type PathSpec struct {
	FromType NodeType `json:"from_type,omitempty"`
	FromName string   `json:"from_name,omitempty"`
	ToType   NodeType `json:"to_type,omitempty"`
	ToName   string   `json:"to_name,omitempty"`
}

// Intent is one classified conversational turn. EntityName and EntityType,
// when present, have already been spell-corrected and matched against the
// known vocabulary upstream.
type Intent struct {
	Kind       IntentKind `json:"intent"`
	EntityName string     `json:"entity_name,omitempty"`
	EntityType NodeType   `json:"entity_type,omitempty"`
	Path       *PathSpec  `json:"path,omitempty"`
	Filter     NodeType   `json:"filters,omitempty"`
}

// Context is the per-session carry-over from the previous resolved turn.
// It is created empty at session start, overwritten after every turn, and
// never shared across sessions.
type Context struct {
	LastEntityName string     `json:"last_entity"`
	LastEntityType NodeType   `json:"last_entity_type"`
	LastIntent     IntentKind `json:"last_intent"`
}

// Empty reports whether the context carries no prior subject.
func (c *Context) Empty() bool {
	return c == nil || c.LastEntityName == ""
}
