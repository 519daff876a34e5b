package dto

import (
	"encoding/json"
	"time"
)

type StartWorkflowRequest struct {
	WorkflowType string          `json:"workflow_type" binding:"required"`
	ThreadID     string          `json:"thread_id"`
	InitialState json.RawMessage `json:"initial_state" binding:"required"`
}

type ResumeWorkflowRequest struct {
	Updates map[string]any `json:"updates" binding:"required"`
	Actor   string         `json:"actor"`
}

type CancelWorkflowRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// WorkflowView is the external snapshot of one instance.
type WorkflowView struct {
	ThreadID     string          `json:"thread_id"`
	WorkflowType string          `json:"workflow_type"`
	CurrentNode  string          `json:"current_node"`
	State        json.RawMessage `json:"state"`
	Version      int             `json:"version"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type TransitionView struct {
	FromNode string    `json:"from_node"`
	ToNode   string    `json:"to_node"`
	Actor    string    `json:"actor,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}
