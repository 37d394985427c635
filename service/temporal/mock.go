package temporal

import (
	"context"
	"fmt"
	"sync"

	"github.com/veritax/veritax/service/ledger"
	"github.com/veritax/veritax/service/prover"
)

// MockStarter is a mock implementation of Starter for testing.
type MockStarter struct {
	mu       sync.Mutex
	started  map[string]ledger.TaxInput
	results  map[string]*AttestationWorkflowResult
	startErr error
	awaitErr error
}

// NewMockStarter creates a new MockStarter.
func NewMockStarter() *MockStarter {
	return &MockStarter{
		started: make(map[string]ledger.TaxInput),
		results: make(map[string]*AttestationWorkflowResult),
	}
}

// StartAttestation records that a workflow was started.
func (m *MockStarter) StartAttestation(ctx context.Context, jobID string, in ledger.TaxInput) error {
	if m.startErr != nil {
		return m.startErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.started[jobID]; exists {
		return fmt.Errorf("workflow %q already started", jobID)
	}
	m.started[jobID] = in
	return nil
}

// AwaitAttestation returns the configured result for a job.
func (m *MockStarter) AwaitAttestation(ctx context.Context, jobID string) (*AttestationWorkflowResult, error) {
	if m.awaitErr != nil {
		return nil, m.awaitErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.results[jobID]
	if !ok {
		return nil, fmt.Errorf("no result configured for workflow %q", jobID)
	}
	return result, nil
}

// SetResult configures the result AwaitAttestation returns for a job.
func (m *MockStarter) SetResult(jobID string, artifacts *prover.Artifacts) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[jobID] = &AttestationWorkflowResult{
		JobID:     jobID,
		Artifacts: artifacts,
	}
}

// SetStartError makes StartAttestation return an error.
func (m *MockStarter) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// SetAwaitError makes AwaitAttestation return an error.
func (m *MockStarter) SetAwaitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.awaitErr = err
}

// Started reports whether a workflow was started for a job.
func (m *MockStarter) Started(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.started[jobID]
	return ok
}

// StartedCount returns the number of started workflows.
func (m *MockStarter) StartedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}

// Reset clears all recorded workflows and errors.
func (m *MockStarter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = make(map[string]ledger.TaxInput)
	m.results = make(map[string]*AttestationWorkflowResult)
	m.startErr = nil
	m.awaitErr = nil
}
