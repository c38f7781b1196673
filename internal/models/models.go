package models

import "time"

// ConversationTurn is a single message in a project conversation.
// Turns are immutable once persisted and ordered by CreatedAt.
type ConversationTurn struct {
	Role      string                 `json:"role"` // "user" or "assistant"
	Content   string                 `json:"content"`
	AgentID   AgentID                `json:"agent_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ItemState categorizes a project item into one of three buckets.
type ItemState string

const (
	ItemDecided   ItemState = "decided"
	ItemExploring ItemState = "exploring"
	ItemParked    ItemState = "parked"
)

// ValidItemState reports whether s is one of the three known buckets.
func ValidItemState(s ItemState) bool {
	switch s {
	case ItemDecided, ItemExploring, ItemParked:
		return true
	}
	return false
}

// Citation records where a project item came from.
type Citation struct {
	SourceQuote string    `json:"source_quote"`
	Confidence  int       `json:"confidence"` // 0-100
	Timestamp   time.Time `json:"timestamp"`
	Origin      string    `json:"origin"`
}

// ProjectItem is one recorded decision item. Items are append-only from the
// orchestration core's perspective: updates happen by replacing the whole
// collection, never by partial in-place mutation visible to other readers.
type ProjectItem struct {
	ID        string                 `json:"id"`
	Text      string                 `json:"text"`
	State     ItemState              `json:"state"`
	Citation  Citation               `json:"citation"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ProjectState is the current item collection partitioned by state.
// It is derived, never stored; recompute it from the collection on every read.
type ProjectState struct {
	Decided   []ProjectItem `json:"decided"`
	Exploring []ProjectItem `json:"exploring"`
	Parked    []ProjectItem `json:"parked"`
}

// PartitionItems splits an item collection into the three state buckets.
func PartitionItems(items []ProjectItem) ProjectState {
	var state ProjectState
	for _, item := range items {
		switch item.State {
		case ItemDecided:
			state.Decided = append(state.Decided, item)
		case ItemParked:
			state.Parked = append(state.Parked, item)
		default:
			state.Exploring = append(state.Exploring, item)
		}
	}
	return state
}

// AgentID names a remote reasoning call with a fixed input/output contract.
type AgentID string

const (
	AgentResponder    AgentID = "responder"
	AgentClassifier   AgentID = "classifier"
	AgentVerification AgentID = "verification"
	AgentRecorder     AgentID = "recorder"
	AgentConsistency  AgentID = "consistency"
	AgentGapDetector  AgentID = "gap_detector"
	AgentQuality      AgentID = "quality"
	AgentResearch     AgentID = "research"
)

// IntentType is the classified intent of an utterance.
type IntentType string

const (
	IntentDeciding  IntentType = "deciding"
	IntentExploring IntentType = "exploring"
	IntentResearch  IntentType = "research"
	IntentReviewing IntentType = "reviewing"
	IntentGeneral   IntentType = "general"
)

// Intent is the result of classifying one utterance.
type Intent struct {
	Type                  IntentType `json:"type"`
	Confidence            int        `json:"confidence"` // 0-100
	RequiresClarification bool       `json:"requires_clarification"`
}

// PlanStep names one agent invocation within a workflow plan.
// Steps with the same non-zero ParallelGroup run concurrently; group 0 steps
// run sequentially in order. Requires names an agent whose successful result
// this step depends on; the engine short-circuits when it is missing.
type PlanStep struct {
	AgentID       AgentID `json:"agent_id"`
	ParallelGroup int     `json:"parallel_group,omitempty"`
	Requires      AgentID `json:"requires,omitempty"`
}

// WorkflowPlan is the ordered/parallel agent sequence chosen for an intent.
// Produced once per turn; immutable afterwards.
type WorkflowPlan struct {
	Intent                IntentType `json:"intent"`
	Confidence            int        `json:"confidence"`
	Steps                 []PlanStep `json:"steps"`
	RequiresClarification bool       `json:"requires_clarification"`
}

// Delta is the set of project items added, modified and moved by one
// reconciliation pass. Modified and Moved are reserved for directive kinds
// no agent emits yet; they stay part of the contract.
type Delta struct {
	Added    []ProjectItem `json:"added"`
	Modified []ProjectItem `json:"modified"`
	Moved    []ProjectItem `json:"moved"`
}

// Empty reports whether the delta carries no changes.
func (d *Delta) Empty() bool {
	return d == nil || (len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Moved) == 0)
}

// AgentResult is the outcome of one agent invocation. Metadata is a closed
// union discriminated by AgentID; callers type-switch on the variant rather
// than probing fields.
type AgentResult struct {
	AgentID       AgentID        `json:"agent_id"`
	Message       string         `json:"message"`
	VisibleToUser bool           `json:"visible_to_user"`
	Metadata      ResultMetadata `json:"metadata,omitempty"`
}
