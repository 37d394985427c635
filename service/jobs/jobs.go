// Package jobs tracks asynchronous attestation work. The store is an
// in-memory map guarded by a read-write mutex: submission and polling
// are decoupled, polls vastly outnumber writes, and a job moves through
// exactly one transition, pending to done or pending to error.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veritax/veritax/service/prover"
)

// Status of an attestation job.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// ErrNotFound distinguishes an unknown job id from a job that failed.
var ErrNotFound = errors.New("job not found")

// ErrTerminal is returned when a transition targets a job that already
// reached a terminal state.
var ErrTerminal = errors.New("job already in a terminal state")

// Job is one attestation request tracked through its lifecycle.
type Job struct {
	ID          string            `json:"id"`
	Status      Status            `json:"status"`
	Result      *prover.Artifacts `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has finished, successfully or not.
func (j *Job) Terminal() bool {
	return j.Status == StatusDone || j.Status == StatusError
}

// Store is the shared job table. Safe for concurrent use.
type Store struct {
	logger *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*Job

	now func() time.Time
}

// NewStore constructs an empty job store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		logger: logger,
		jobs:   make(map[string]*Job),
		now:    time.Now,
	}
}

// Create registers a new pending job and returns its id.
func (s *Store) Create() *Job {
	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return s.snapshot(job)
}

// Get returns a copy of the job, or ErrNotFound for an unknown id.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.snapshot(job), nil
}

// Complete transitions a pending job to done with its artifacts. A
// terminal job is never overwritten.
func (s *Store) Complete(id string, result *prover.Artifacts) error {
	return s.transition(id, func(job *Job) {
		job.Status = StatusDone
		job.Result = result
	})
}

// Fail transitions a pending job to the error state.
func (s *Store) Fail(id string, msg string) error {
	return s.transition(id, func(job *Job) {
		job.Status = StatusError
		job.Error = msg
	})
}

func (s *Store) transition(id string, apply func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, id, job.Status)
	}
	apply(job)
	done := s.now().UTC()
	job.CompletedAt = &done
	return nil
}

// snapshot copies a job so callers never share memory with the table.
// Callers hold at least a read lock, or the job is not yet published.
func (s *Store) snapshot(job *Job) *Job {
	cp := *job
	if job.Result != nil {
		r := *job.Result
		cp.Result = &r
	}
	return &cp
}

// Sweep removes terminal jobs completed before the cutoff and returns
// how many were dropped. Pending jobs are never swept.
func (s *Store) Sweep(retention time.Duration) int {
	cutoff := s.now().Add(-retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		if job.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps the store on the given interval until the context
// is cancelled. A zero retention disables sweeping entirely.
func (s *Store) RunJanitor(ctx context.Context, interval, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(retention); n > 0 {
				s.logger.Debug("swept terminal jobs", "removed", n)
			}
		}
	}
}

// Len returns the number of tracked jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
