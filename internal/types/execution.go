package types

import (
	"fmt"
	"time"
)

// RunMode is the kind of batch run.
type RunMode string

const (
	ModeRebuild     RunMode = "rebuild"
	ModeIncremental RunMode = "incremental"
	ModeValidate    RunMode = "validate"
	ModeDecide      RunMode = "decide"
)

// IsValid checks if the run mode value is valid
func (m RunMode) IsValid() bool {
	switch m {
	case ModeRebuild, ModeIncremental, ModeValidate, ModeDecide:
		return true
	}
	return false
}

// RunStatus is the lifecycle of a batch run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
)

// Stage names the orchestrator's bulk stages in execution order.
type Stage string

const (
	StageIngest     Stage = "ingest"
	StageEmbed      Stage = "embed"
	StageCandidates Stage = "candidates"
	StageSimilarity Stage = "similarity"
	StageClassify   Stage = "classify"
	StageGroup      Stage = "group"
	StageConcepts   Stage = "concepts"
	StageValidate   Stage = "validate"
	StageLedger     Stage = "ledger"
	StageReport     Stage = "report"
)

// Stages lists every stage in order.
var Stages = []Stage{
	StageIngest, StageEmbed, StageCandidates, StageSimilarity, StageClassify,
	StageGroup, StageConcepts, StageValidate, StageLedger, StageReport,
}

// Index returns the position of s in Stages, or -1.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Run is the manifest row for one orchestrator invocation.
type Run struct {
	ID         string     `json:"id"`
	Mode       RunMode    `json:"mode"`
	Status     RunStatus  `json:"status"`
	InputHash  string     `json:"input_hash"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Summary    string     `json:"summary,omitempty"`
}

// Checkpoint is a durable marker of stage progress.
type Checkpoint struct {
	RunID     string    `json:"run_id"`
	Stage     Stage     `json:"stage"`
	Offset    int       `json:"offset"`
	Done      bool      `json:"done"`
	Payload   []byte    `json:"payload"`
	Checksum  string    `json:"checksum"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the checkpoint has valid field values
func (c *Checkpoint) Validate() error {
	if c.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if c.Stage.Index() < 0 {
		return fmt.Errorf("invalid stage: %s", c.Stage)
	}
	if c.Offset < 0 {
		return fmt.Errorf("offset cannot be negative (got %d)", c.Offset)
	}
	return nil
}

// EmbeddingFailure records an entity left unembedded by a run.
type EmbeddingFailure struct {
	EntityID    string    `json:"entity_id"`
	ContentHash string    `json:"content_hash"`
	Error       string    `json:"error"`
	Attempts    int       `json:"attempts"`
	RunID       string    `json:"run_id"`
	FailedAt    time.Time `json:"failed_at"`
}

// IntegrityKind names a data-integrity problem found in inputs or derived artifacts.
type IntegrityKind string

const (
	IntegrityDuplicateID     IntegrityKind = "duplicate-id"
	IntegrityOrphan          IntegrityKind = "orphan"
	IntegrityMissingParent   IntegrityKind = "missing-parent"
	IntegrityLevelSkip       IntegrityKind = "level-skip"
	IntegrityCycle           IntegrityKind = "cycle"
	IntegrityOrphanMapping   IntegrityKind = "orphaned-mapping"
	IntegrityMissingName     IntegrityKind = "missing-canonical-name"
	IntegrityMultiMembership IntegrityKind = "multiple-membership"
)

// IntegrityIssue is reported in the validation report rather than dropped.
type IntegrityIssue struct {
	Kind   IntegrityKind `json:"kind"`
	Ref    string        `json:"ref"`
	Detail string        `json:"detail"`
}
