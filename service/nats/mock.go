package nats

import (
	"context"
	"sync"

	"github.com/veritax/veritax/service/prover"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*AttestationEvent
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*AttestationEvent, 0),
	}
}

// PublishAttestation records the event and returns any configured error.
func (m *MockPublisher) PublishAttestation(ctx context.Context, event *AttestationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// PublishAttestationEvent mirrors the job runner hook signature.
func (m *MockPublisher) PublishAttestationEvent(ctx context.Context, jobID, status string, artifacts *prover.Artifacts) error {
	return m.PublishAttestation(ctx, NewAttestationEvent(jobID, status, artifacts))
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*AttestationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	events := make([]*AttestationEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventCount returns the number of published events.
func (m *MockPublisher) GetPublishedEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.publishedEvents)
}

// GetPublishedEventsForJob returns events published for a specific job.
func (m *MockPublisher) GetPublishedEventsForJob(jobID string) []*AttestationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*AttestationEvent, 0)
	for _, event := range m.publishedEvents {
		if event.JobID == jobID {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on PublishAttestation.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedEvents = make([]*AttestationEvent, 0)
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
