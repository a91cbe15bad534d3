package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erdflow/backend/internal/deploy"
)

// RunStatus is the lifecycle state of one tracked deployment run.
type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunRunning    RunStatus = "running"
	RunSucceeded  RunStatus = "succeeded"
	RunFailed     RunStatus = "failed"
	RunRolledBack RunStatus = "rolled_back"
)

// ProgressEvent is one recorded stage-boundary notification.
type ProgressEvent struct {
	Stage   string         `json:"stage"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	At      time.Time      `json:"at"`
}

// RunRecord tracks one deployment run from submission to completion.
type RunRecord struct {
	ID         string                 `json:"id"`
	Status     RunStatus              `json:"status"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt *time.Time             `json:"finishedAt,omitempty"`
	Result     *deploy.Result         `json:"result,omitempty"`
	Rollback   *deploy.RollbackResult `json:"rollback,omitempty"`
	Progress   []ProgressEvent        `json:"progress,omitempty"`
}

// RunStore is the in-memory registry of deployment runs. Records are kept
// for the process lifetime; durability is out of scope for the wizard flow
// this backs.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
}

// NewRunStore creates an empty store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*RunRecord)}
}

// Create registers a new pending run and returns its id.
func (s *RunStore) Create() string {
	record := &RunRecord{
		ID:        uuid.NewString(),
		Status:    RunPending,
		StartedAt: time.Now(),
	}
	s.mu.Lock()
	s.runs[record.ID] = record
	s.mu.Unlock()
	return record.ID
}

// Get returns a snapshot of the run, or nil when unknown. The snapshot is
// safe to read while the run keeps progressing.
func (s *RunStore) Get(id string) *RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.runs[id]
	if !ok {
		return nil
	}
	snapshot := *record
	snapshot.Progress = append([]ProgressEvent(nil), record.Progress...)
	return &snapshot
}

// Update applies fn to the run record under the store lock.
func (s *RunStore) Update(id string, fn func(*RunRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.runs[id]; ok {
		fn(record)
	}
}

// AppendProgress records one progress event. Safe for concurrent sinks.
func (s *RunStore) AppendProgress(id string, event ProgressEvent) {
	s.Update(id, func(record *RunRecord) {
		record.Progress = append(record.Progress, event)
	})
}
