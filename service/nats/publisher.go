package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/veritax/veritax/service/prover"
)

// Publisher defines the interface for publishing attestation events to NATS.
type Publisher interface {
	// PublishAttestation publishes a single attestation event to JetStream.
	// The event is published to the subject "attestations.{job_id}".
	PublishAttestation(ctx context.Context, event *AttestationEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes attestation events to NATS JetStream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for attestations.
	StreamName = "ATTESTATIONS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "attestations.*"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, logger *slog.Logger) (*JetStreamPublisher, error) {
	// Connect to NATS
	nc, err := nats.Connect(natsURL,
		nats.Name("veritax-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Create JetStream context
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}

	// Ensure stream exists
	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Try to get existing stream
	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		// Stream exists, log info
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	// Stream doesn't exist, create it
	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Attestation lifecycle events",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishAttestation publishes a single attestation event.
func (p *JetStreamPublisher) PublishAttestation(ctx context.Context, event *AttestationEvent) error {
	subject := fmt.Sprintf("attestations.%s", event.JobID)

	// Marshal event to JSON
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal attestation event: %w", err)
	}

	// Publish to JetStream
	_, err = p.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish attestation: %w", err)
	}

	p.logger.Debug("published attestation event",
		"subject", subject,
		"job_id", event.JobID,
		"status", event.Status,
	)

	return nil
}

// PublishAttestationEvent adapts the publisher to the job runner's hook
// signature: it builds the event from the transition and publishes it.
func (p *JetStreamPublisher) PublishAttestationEvent(ctx context.Context, jobID, status string, artifacts *prover.Artifacts) error {
	return p.PublishAttestation(ctx, NewAttestationEvent(jobID, status, artifacts))
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
