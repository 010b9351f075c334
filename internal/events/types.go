// Package events defines the structured audit trail written while a batch run
// progresses. Events are stored alongside run manifests and read back by the
// status command.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event that occurred during a run.
type EventType string

const (
	// EventTypeRunStarted indicates a run manifest was created
	EventTypeRunStarted EventType = "run_started"
	// EventTypeRunCompleted indicates every stage finished
	EventTypeRunCompleted EventType = "run_completed"
	// EventTypeRunFailed indicates a run stopped on an unrecoverable error
	EventTypeRunFailed EventType = "run_failed"
	// EventTypeRunResumed indicates a run picked up from a checkpoint
	EventTypeRunResumed EventType = "run_resumed"

	EventTypeStageStarted   EventType = "stage_started"
	EventTypeStageCompleted EventType = "stage_completed"

	// EventTypeCheckpointWritten indicates a checkpoint was persisted
	EventTypeCheckpointWritten EventType = "checkpoint_written"
	// EventTypeCheckpointCorrupt indicates a checkpoint failed verification and was invalidated
	EventTypeCheckpointCorrupt EventType = "checkpoint_corrupt"

	// EventTypeEmbeddingFailed indicates an entity was left unembedded
	EventTypeEmbeddingFailed EventType = "embedding_failed"
	// EventTypeLLMFallback indicates a pair fell back to rule-only classification
	EventTypeLLMFallback EventType = "llm_fallback"

	// EventTypeDecisionRecorded indicates a human decision was appended to the ledger
	EventTypeDecisionRecorded EventType = "decision_recorded"
	// EventTypeLedgerImported indicates decisions were imported from a JSONL file
	EventTypeLedgerImported EventType = "ledger_imported"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityError    EventSeverity = "error"
	SeverityCritical EventSeverity = "critical"
)

// IsValid checks if the severity value is valid
func (s EventSeverity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Event is one row of the run audit trail.
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	RunID     string        `json:"run_id"`
	// Stage is empty for run-level and ledger events.
	Stage    string                 `json:"stage,omitempty"`
	Severity EventSeverity          `json:"severity"`
	Message  string                 `json:"message"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// EventFilter selects events for queries. Zero fields do not filter.
type EventFilter struct {
	RunID     string
	Type      EventType
	Severity  EventSeverity
	AfterTime time.Time
	Limit     int
}

// NewEvent builds an event with a fresh id and the current time.
func NewEvent(eventType EventType, runID, stage string, severity EventSeverity, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     runID,
		Stage:     stage,
		Severity:  severity,
		Message:   message,
		Data:      make(map[string]interface{}),
	}
}

// With sets one data key and returns the event for chaining.
func (e *Event) With(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// MarshalData encodes Data for storage. Nil data encodes as "{}".
func (e *Event) MarshalData() (string, error) {
	if len(e.Data) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(e.Data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event data: %w", err)
	}
	return string(b), nil
}

// UnmarshalData is the inverse of MarshalData.
func (e *Event) UnmarshalData(raw string) error {
	if raw == "" {
		e.Data = nil
		return nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return fmt.Errorf("failed to unmarshal event data: %w", err)
	}
	e.Data = data
	return nil
}
