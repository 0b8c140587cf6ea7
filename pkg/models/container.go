package models

import (
	"encoding/json"
)

// OutputStatus is the terminal status a container turn reports.
type OutputStatus string

const (
	StatusSuccess OutputStatus = "success"
	StatusError   OutputStatus = "error"
)

// ContainerInput is one turn's request. It is written to the child's stdin as
// a single JSON document, after which the stream is closed; there is no
// further host-to-child communication during the turn.
type ContainerInput struct {
	// Prompt is the assembled message window or scheduled-task prompt.
	Prompt string `json:"prompt"`

	// SessionID is the prior session handle for this group, if any. The child
	// uses it to resume conversational context.
	SessionID string `json:"session_id,omitempty"`

	// GroupFolder identifies the group whose workspace is mounted.
	GroupFolder string `json:"group_folder"`

	// ChatID is the transport chat that triggered the turn.
	ChatID string `json:"chat_id"`

	// IsMain is set when the turn runs on behalf of the main group.
	IsMain bool `json:"is_main"`

	// IsScheduledTask is set when the turn was triggered by the scheduler
	// rather than an inbound message.
	IsScheduledTask bool `json:"is_scheduled_task,omitempty"`
}

// ContainerOutput is the sole channel by which the child reports the outcome
// of a turn. Absence of a well-formed output is itself an error condition.
type ContainerOutput struct {
	// Status is "success" or "error".
	Status OutputStatus `json:"status"`

	// Result is the textual result to forward to the chat, or null.
	Result *string `json:"result"`

	// NewSessionID, when present, replaces the stored session handle for the
	// group. All future turns must pass the latest known handle.
	NewSessionID string `json:"new_session_id,omitempty"`

	// Error describes the failure when Status is "error".
	Error string `json:"error,omitempty"`
}

// Marshal serializes the input for the child's stdin.
func (in *ContainerInput) Marshal() ([]byte, error) {
	return json.Marshal(in)
}

// ErrorOutput builds the uniform error-shaped output every turn-fatal failure
// resolves to at the runner boundary.
func ErrorOutput(msg string) *ContainerOutput {
	return &ContainerOutput{Status: StatusError, Result: nil, Error: msg}
}

// SuccessText is a convenience for building a success output around a string.
func SuccessText(text string) *ContainerOutput {
	return &ContainerOutput{Status: StatusSuccess, Result: &text}
}
