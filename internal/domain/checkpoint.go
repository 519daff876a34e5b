package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Checkpoint is the single durable record per workflow instance: the
// resumable position plus the full state document. It is mutated only by
// the execution engine; the store is a passive mirror.
type Checkpoint struct {
	ThreadID     string         `gorm:"type:varchar(100);primary_key" json:"thread_id"`
	WorkflowType string         `gorm:"type:varchar(50);index;not null" json:"workflow_type"`
	CurrentNode  string         `gorm:"type:varchar(100);not null" json:"current_node"`
	State        datatypes.JSON `gorm:"type:jsonb" json:"state"`
	Version      int            `gorm:"default:0" json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCheckpoint creates the initial record for a freshly started instance.
func NewCheckpoint(threadID, workflowType, entry string, state State) (*Checkpoint, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &Checkpoint{
		ThreadID:     threadID,
		WorkflowType: workflowType,
		CurrentNode:  entry,
		State:        datatypes.JSON(raw),
		Version:      0,
		CreatedAt:    time.Now(),
	}, nil
}

// StateDocument decodes the persisted state blob.
func (c *Checkpoint) StateDocument() (State, error) {
	var s State
	if len(c.State) == 0 {
		return State{}, nil
	}
	if err := json.Unmarshal(c.State, &s); err != nil {
		return nil, err
	}
	return s, nil
}

// SetStateDocument replaces the persisted state blob.
func (c *Checkpoint) SetStateDocument(s State) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	c.State = datatypes.JSON(raw)
	return nil
}

// Transition is one append-only audit record. Never mutated after insert
// and never read back by the engine itself.
type Transition struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ThreadID string    `gorm:"type:varchar(100);index;not null" json:"thread_id"`
	FromNode string    `gorm:"type:varchar(100);not null" json:"from_node"`
	ToNode   string    `gorm:"type:varchar(100);not null" json:"to_node"`
	Actor    string    `gorm:"type:varchar(100)" json:"actor,omitempty"`
	Reason   string    `gorm:"type:text" json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

func NewTransition(threadID, from, to, actor, reason string) *Transition {
	return &Transition{
		ID:       uuid.New(),
		ThreadID: threadID,
		FromNode: from,
		ToNode:   to,
		Actor:    actor,
		Reason:   reason,
		At:       time.Now(),
	}
}

// ApprovalSlot mirrors one named decision for a thread. At most one row per
// (thread_id, slot_name); re-submission overwrites rather than duplicates.
type ApprovalSlot struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ThreadID  string    `gorm:"type:varchar(100);uniqueIndex:idx_thread_slot;not null" json:"thread_id"`
	SlotName  string    `gorm:"type:varchar(50);uniqueIndex:idx_thread_slot;not null" json:"slot_name"`
	Decision  string    `gorm:"type:varchar(20);not null" json:"decision"`
	Actor     string    `gorm:"type:varchar(100)" json:"actor,omitempty"`
	Comments  string    `gorm:"type:text" json:"comments,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// DependencyLink records that one instance may not pass its validation
// stage until the referenced upstream instance reached the success terminal.
type DependencyLink struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ThreadID          string    `gorm:"type:varchar(100);uniqueIndex:idx_thread_dep;not null" json:"thread_id"`
	DependsOnThreadID string    `gorm:"type:varchar(100);uniqueIndex:idx_thread_dep;not null" json:"depends_on_thread_id"`
	Kind              string    `gorm:"type:varchar(50);not null" json:"kind"`
	CreatedAt         time.Time `json:"created_at"`
}

// EntityStatus is what the entity status provider reports for an upstream
// business entity (vendor, SKU, price, PO, GRN).
type EntityStatus struct {
	Status      string    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
}

// TransitionEvent is broadcast after every committed transition so external
// observers (approver notifications, dashboards) can react. Best-effort,
// never part of the durable commit.
type TransitionEvent struct {
	ThreadID     string    `json:"thread_id"`
	WorkflowType string    `json:"workflow_type"`
	FromNode     string    `json:"from_node"`
	ToNode       string    `json:"to_node"`
	Actor        string    `json:"actor,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Version      int       `json:"version"`
	At           time.Time `json:"at"`
}

// GenerateRequest/GenerateResult are the narrow contract with the external
// generative content provider used by agent nodes.
type GenerateRequest struct {
	Prompt       string         `json:"prompt"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Schema       map[string]any `json:"schema,omitempty"`
}

type GenerateResult struct {
	Content map[string]any `json:"content"`
	Model   string         `json:"model"`
	Usage   map[string]int `json:"usage,omitempty"`
}
