package deploy

import (
	"github.com/erdflow/backend/internal/domain/ports"
)

// Stage is a deployment run state. Stages advance strictly forward;
// StageFailed is terminal and reachable from any non-terminal state.
type Stage string

const (
	StageIdle          Stage = "Idle"
	StagePublisher     Stage = "PublisherReady"
	StageSolution      Stage = "SolutionReady"
	StageEntities      Stage = "EntitiesCreated"
	StageAttributes    Stage = "AttributesCreated"
	StageRelationships Stage = "RelationshipsCreated"
	StageComplete      Stage = "Complete"
	StageFailed        Stage = "Failed"
)

// Item outcome statuses.
const (
	StatusCreated        = "created"
	StatusAlreadyExisted = "already-existed"
	StatusFailed         = "failed"
	StatusSkipped        = "skipped"
)

// ItemOutcome records what happened to one named resource during a run.
type ItemOutcome struct {
	Name           string `json:"name"`
	Status         string `json:"status"`
	AlreadyPresent bool   `json:"alreadyPresent,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Result is the structured outcome of one deployment run. Per-item
// outcomes are always populated, even for partially failed runs: silent
// failure is disallowed.
type Result struct {
	RunID         string           `json:"runId"`
	State         Stage            `json:"state"`
	Success       bool             `json:"success"`
	Publisher     *ports.Publisher `json:"publisher,omitempty"`
	Solution      *ports.Solution  `json:"solution,omitempty"`
	Entities      []ItemOutcome    `json:"entities"`
	Attributes    []ItemOutcome    `json:"attributes"`
	Relationships []ItemOutcome    `json:"relationships"`
	Warnings      []string         `json:"warnings,omitempty"`
	Errors        []string         `json:"errors,omitempty"`

	// CreatedEntities is the rollback ledger: logical names created in this
	// run, in creation order. Used only when the caller explicitly requests
	// rollback.
	CreatedEntities []string `json:"createdEntities,omitempty"`
}

// RollbackResult reports a best-effort rollback of one run.
type RollbackResult struct {
	EntitiesProcessed int      `json:"entitiesProcessed"`
	EntitiesDeleted   int      `json:"entitiesDeleted"`
	EntitiesSkipped   int      `json:"entitiesSkipped"`
	Warnings          []string `json:"warnings,omitempty"`
	Errors            []string `json:"errors,omitempty"`
}

// run holds the ephemeral state of one deployment: the existence cache is
// scoped here, never process-wide.
type run struct {
	result *Result
	// known caches GetEntity answers and entities created by this run,
	// keyed by lowercased logical name.
	known map[string]*ports.EntityMetadata
}

func (r *run) remember(logicalName string, meta *ports.EntityMetadata) {
	r.known[lowerKey(logicalName)] = meta
}

func (r *run) lookup(logicalName string) (*ports.EntityMetadata, bool) {
	meta, ok := r.known[lowerKey(logicalName)]
	return meta, ok
}
