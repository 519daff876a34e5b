package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the engine and stores. Business-rule failures
// (validation, unmet dependencies) are not errors at all; they are normal
// transitions to the rejection terminal carrying a reason.
var (
	// ErrNotFound is returned when no checkpoint exists for a thread id.
	ErrNotFound = errors.New("workflow instance not found")

	// ErrStaleVersion is returned by a compare-and-set save when the stored
	// version advanced since load. The caller retries from a fresh load.
	ErrStaleVersion = errors.New("stale version: instance was updated concurrently")

	// ErrUnknownWorkflowType is returned for a type with no registered
	// definition.
	ErrUnknownWorkflowType = errors.New("unknown workflow type")

	// ErrStepBudgetExhausted means a run pass hit its step limit without
	// reaching an interrupt or terminal node. Almost always a misconfigured
	// conditional edge spinning the interpreter.
	ErrStepBudgetExhausted = errors.New("execution step budget exhausted")
)

// InvalidResumeError is returned when resume (or cancel) is called on an
// instance that is not suspended at an interrupt node. The instance is left
// untouched.
type InvalidResumeError struct {
	ThreadID    string
	CurrentNode string
}

func (e *InvalidResumeError) Error() string {
	return fmt.Sprintf("thread %s is not suspended at an interrupt node (at %q)", e.ThreadID, e.CurrentNode)
}

// ConfigurationError reports a malformed workflow definition. Graph shape
// problems are caught at construction; a routing function returning an
// undeclared label is caught at runtime but is still a configuration bug,
// never silently ignored.
type ConfigurationError struct {
	WorkflowType string
	Detail       string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("workflow %q misconfigured: %s", e.WorkflowType, e.Detail)
}

// ValidationError reports a malformed payload (undecodable initial state or
// resume updates). Missing business fields are not a ValidationError; the
// validation node routes those to the rejection terminal instead.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %s", e.Detail)
}

// CollaboratorError wraps a failure from an external provider invoked
// inside a node function. The engine records it on the instance's error
// field and leaves the position unchanged so the same node can be retried.
type CollaboratorError struct {
	Node string
	Err  error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator failed in node %q: %v", e.Node, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }
