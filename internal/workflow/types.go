// Package workflow defines the immutable workflow document: activities,
// edges, decision nodes, contexts, and roles that together describe a
// graph the engine drives to completion. Values in this package are
// parsed once at load time and never mutated afterward.
package workflow

import "time"

// ActorType names which actor kind performs an activity.
type ActorType string

const (
	ActorHuman       ActorType = "human"
	ActorAIAgent     ActorType = "ai_agent"
	ActorRobot       ActorType = "robot"
	ActorApplication ActorType = "application"
)

// Lifecycle classifies how long a context slot's value is retained.
type Lifecycle string

const (
	LifecycleTransient  Lifecycle = "transient"
	LifecyclePersistent Lifecycle = "persistent"
	LifecycleCached     Lifecycle = "cached"
)

// AccessMode names how an activity's context binding uses a slot.
type AccessMode string

const (
	AccessRead      AccessMode = "read"
	AccessWrite     AccessMode = "write"
	AccessReadWrite AccessMode = "read_write"
	AccessSubscribe AccessMode = "subscribe"
	AccessPublish   AccessMode = "publish"
)

// DataSlot describes one declared input or output of an activity. The
// kernel treats the payload itself as opaque JSON; Schema (if present) is
// used only for validation at load time and best-effort validation
// before human-task creation.
type DataSlot struct {
	Name        string          `json:"name" validate:"required"`
	Type        string          `json:"type,omitempty"`
	Description string          `json:"description,omitempty"`
	Required    bool            `json:"required,omitempty"`
	Schema      map[string]any  `json:"schema,omitempty"`
}

// ContextBinding ties an activity to a context slot with a declared
// access mode.
type ContextBinding struct {
	ContextID string     `json:"context_id" validate:"required"`
	Access    AccessMode `json:"access_mode" validate:"required"`
}

// Program is a declarative effect descriptor attached to an activity,
// e.g. a REST-endpoint synthesis recipe consumed by the software actor.
type Program struct {
	Kind       string         `json:"kind" validate:"required"`
	Method     string         `json:"method,omitempty"`
	URLPattern string         `json:"url_pattern,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Params     []string       `json:"params,omitempty"`
}

// Control is a policy annotation surfaced to an actor at call time (e.g.
// "no PII in output", forwarded as a prompt constraint to an AI actor).
type Control struct {
	Name        string `json:"name" validate:"required"`
	Enforcement string `json:"enforcement,omitempty"`
}

// SLAHint carries target/max durations and an escalation flag used for
// due-date computation and human-task priority defaulting.
type SLAHint struct {
	Target     string `json:"target,omitempty"`
	Max        string `json:"max,omitempty"`
	Escalation bool   `json:"escalation,omitempty"`
}

// AnalyticsHint carries the value-stream classification of a node.
type AnalyticsHint struct {
	ValueAdded *bool `json:"value_added,omitempty"`
}

// Activity is a graph node performed by exactly one actor.
type Activity struct {
	ID                  string          `json:"id" validate:"required,uuid4"`
	Name                string          `json:"name" validate:"required"`
	RoleID              string          `json:"role_id" validate:"required"`
	ActorType           ActorType       `json:"actor_type" validate:"required"`
	Description         string          `json:"description,omitempty"`
	Inputs              []DataSlot      `json:"inputs"`
	Outputs             []DataSlot      `json:"outputs"`
	ContextBindings     []ContextBinding `json:"context_bindings,omitempty"`
	AccessRights        []string        `json:"access_rights,omitempty"`
	Programs            []Program       `json:"programs,omitempty"`
	Controls            []Control       `json:"controls,omitempty"`
	SLA                 *SLAHint        `json:"sla,omitempty"`
	Analytics           *AnalyticsHint  `json:"analytics,omitempty"`
	IsExpandable        bool            `json:"is_expandable,omitempty"`
	ExpansionWorkflowID string          `json:"expansion_workflow_id,omitempty"`
}

// ValueAddedOrDefault returns the activity's declared value_added hint,
// defaulting to true when unset.
func (a Activity) ValueAddedOrDefault() bool {
	if a.Analytics == nil || a.Analytics.ValueAdded == nil {
		return true
	}
	return *a.Analytics.ValueAdded
}

// Edge connects two nodes. A Condition expression (edge-guard grammar,
// distinct from the decision-table FEEL grammar) gates traversal; edges
// with no condition are unconditional.
type Edge struct {
	ID         string `json:"id" validate:"required,uuid4"`
	SourceID   string `json:"source_id" validate:"required"`
	TargetID   string `json:"target_id" validate:"required"`
	SourceType string `json:"source_type,omitempty"`
	TargetType string `json:"target_type,omitempty"`
	Condition  string `json:"condition,omitempty"`
	Label      string `json:"label,omitempty"`
	IsDefault  bool   `json:"is_default,omitempty"`
}

// Event is a node kind that validation accepts as an edge endpoint. The
// engine does not execute events: a token that reaches one fails as an
// unknown node.
type Event struct {
	ID   string `json:"id" validate:"required,uuid4"`
	Name string `json:"name,omitempty"`
	Kind string `json:"kind,omitempty"`
}

// Column is one input or output column declaration of a decision table.
type Column struct {
	Name string `json:"name" validate:"required"`
	Type string `json:"type,omitempty"`
}

// Rule is one row of a decision table: one input-entry expression per
// input column, one output-entry value per output column, and an
// optional edge to route to when this rule matches.
type Rule struct {
	InputEntries  []string       `json:"input_entries"`
	OutputEntries []any          `json:"output_entries"`
	OutputEdgeID  string         `json:"output_edge_id,omitempty"`
}

// HitPolicy names the rule-combination strategy of a decision table.
type HitPolicy string

const (
	HitUnique    HitPolicy = "unique"
	HitFirst     HitPolicy = "first"
	HitPriority  HitPolicy = "priority"
	HitAny       HitPolicy = "any"
	HitCollect   HitPolicy = "collect"
	HitRuleOrder HitPolicy = "rule_order"
)

// DecisionTable is the routing table attached to a DecisionNode.
type DecisionTable struct {
	HitPolicy HitPolicy `json:"hit_policy" validate:"required"`
	Inputs    []Column  `json:"inputs"`
	Outputs   []Column  `json:"outputs"`
	Rules     []Rule    `json:"rules"`
}

// DecisionNode routes its single outgoing path by evaluating a
// DecisionTable against the token's context data, rather than by
// evaluating edge guards.
type DecisionNode struct {
	ID                  string        `json:"id" validate:"required,uuid4"`
	Name                string        `json:"name,omitempty"`
	DecisionTable       DecisionTable `json:"decision_table"`
	DefaultOutputEdgeID string        `json:"default_output_edge_id,omitempty"`
}

// Context declares one workflow-scoped shared-state slot.
type Context struct {
	ID           string    `json:"id" validate:"required"`
	Name         string    `json:"name,omitempty"`
	Type         string    `json:"type,omitempty"`
	SyncPattern  string    `json:"sync_pattern,omitempty"`
	Visibility   string    `json:"visibility,omitempty"`
	Lifecycle    Lifecycle `json:"lifecycle,omitempty"`
	InitialValue any       `json:"initial_value,omitempty"`
}

// ModelConfig is the per-role AI-actor dispatch configuration: which
// provider/model to call and how to shape the request.
type ModelConfig struct {
	Provider           string  `json:"provider,omitempty"`
	ModelID            string  `json:"model_id,omitempty"`
	Temperature        float64 `json:"temperature,omitempty"`
	MaxTokens          int     `json:"max_tokens,omitempty"`
	SystemPromptOverride string `json:"system_prompt_override,omitempty"`
}

// RobotConfig is the non-simulation connection descriptor for a robot
// actor; unused in the default simulation mode.
type RobotConfig struct {
	Protocol   string `json:"protocol,omitempty"`
	Connection string `json:"connection,omitempty"`
}

// Role describes the performer bound to an activity via RoleID.
type Role struct {
	ID           string       `json:"id" validate:"required"`
	Name         string       `json:"name,omitempty"`
	Description  string       `json:"description,omitempty"`
	Capabilities []string     `json:"capabilities,omitempty"`
	Model        *ModelConfig `json:"model,omitempty"`
	Robot        *RobotConfig `json:"robot,omitempty"`
}

// Workflow is the immutable, versioned input document the engine is
// constructed from.
type Workflow struct {
	ID             string          `json:"id" validate:"required,uuid4"`
	Name           string          `json:"name" validate:"required"`
	Version        string          `json:"version" validate:"required"`
	Description    string          `json:"description,omitempty"`
	OwnerID        string          `json:"owner_id,omitempty"`
	OrganizationID string          `json:"organization_id,omitempty"`
	Activities     []Activity      `json:"activities"`
	Edges          []Edge          `json:"edges"`
	Events         []Event         `json:"events,omitempty"`
	DecisionNodes  []DecisionNode  `json:"decision_nodes,omitempty"`
	Contexts       []Context       `json:"contexts,omitempty"`
	Roles          []Role          `json:"roles,omitempty"`
	SLA            *SLAHint        `json:"sla,omitempty"`
	Analytics      *AnalyticsHint  `json:"analytics,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
}
