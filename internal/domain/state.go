package domain

import (
	"encoding/json"
	"time"
)

// State is the open document carried by a workflow instance. The exact
// field set is workflow-type specific; each workflow type declares a typed
// struct (VendorState etc.) that the document round-trips through.
type State map[string]any

// Well-known state fields shared by all workflow types.
const (
	FieldWorkflowType  = "workflow_type"
	FieldCurrentStatus = "current_status"
	FieldError         = "error"
	FieldStatusReason  = "status_reason"
	FieldCreatedAt     = "created_at"
	FieldUpdatedAt     = "updated_at"
)

// Decision values for approval records and slots.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
	DecisionPending  = "pending"
)

// Approval is one recorded human decision inside a state document.
type Approval struct {
	Approved bool      `json:"approved"`
	Actor    string    `json:"actor,omitempty"`
	Comments string    `json:"comments,omitempty"`
	At       time.Time `json:"at,omitempty"`
}

// Clone returns a copy of the state. Nested maps are copied one level deep,
// which is the same depth the merge operates at.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		if nested, ok := v.(map[string]any); ok {
			nc := make(map[string]any, len(nested))
			for nk, nv := range nested {
				nc[nk] = nv
			}
			out[k] = nc
			continue
		}
		out[k] = v
	}
	return out
}

// Merge applies updates via shallow field replacement. When both the
// existing and incoming value for a key are maps, the maps are merged
// key-by-key instead of replaced wholesale, so one department's approval
// does not erase another's already-recorded approval.
func (s State) Merge(updates map[string]any) State {
	out := s.Clone()
	for k, v := range updates {
		existing, isMap := out[k].(map[string]any)
		incoming, incMap := v.(map[string]any)
		if isMap && incMap {
			for nk, nv := range incoming {
				existing[nk] = nv
			}
			continue
		}
		out[k] = v
	}
	return out
}

// Decode round-trips the document into a typed per-workflow state struct.
func (s State) Decode(v any) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// EncodeState converts a typed state struct back into the open document.
func EncodeState(v any) (State, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s State) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// ErrorMessage returns the instance-level error field, if set.
func (s State) ErrorMessage() string {
	return s.String(FieldError)
}

// WithError returns a copy with the error field set (empty msg clears it).
func (s State) WithError(msg string) State {
	out := s.Clone()
	if msg == "" {
		delete(out, FieldError)
	} else {
		out[FieldError] = msg
	}
	return out
}
