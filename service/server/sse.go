package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/veritax/veritax/service/jobs"
	natspkg "github.com/veritax/veritax/service/nats"
)

// SSEPublisher manages Server-Sent Events connections for attestation
// lifecycle streaming.
type SSEPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSSEPublisher creates a new SSE publisher that subscribes to NATS internally.
func NewSSEPublisher(natsURL string, logger *slog.Logger) (*SSEPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("veritax-sse-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	logger.Info("SSE publisher initialized", "nats_url", natsURL)

	return &SSEPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}, nil
}

// Close closes the NATS connection.
func (p *SSEPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("SSE publisher closed")
	}
	return nil
}

// handleStreamAttestation streams lifecycle events for one attestation
// job over SSE. A job that is already terminal gets its final state
// immediately and the stream ends.
// GET /api/v1/attestations/{id}/stream
func handleStreamAttestation(publisher *SSEPublisher, store *jobs.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jobID := r.PathValue("id")

		job, err := store.Get(jobID)
		if err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				writeError(w, "attestation job not found", http.StatusNotFound)
				return
			}
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, _ := w.(http.Flusher)
		flush := func() {
			if flusher != nil {
				flusher.Flush()
			}
		}

		logger.DebugContext(r.Context(), "SSE client connected",
			"job_id", jobID,
			"remote_addr", r.RemoteAddr,
		)

		fmt.Fprintf(w, "event: connected\ndata: {\"job_id\":%q}\n\n", jobID)
		flush()

		// Terminal jobs need no subscription; send a snapshot event in
		// the same shape as the streamed ones and end.
		if job.Terminal() {
			event := natspkg.NewAttestationEvent(job.ID, string(job.Status), job.Result)
			data, err := json.Marshal(event)
			if err == nil {
				fmt.Fprintf(w, "event: attestation\ndata: %s\n\n", string(data))
				flush()
			}
			return
		}

		// Ephemeral consumer scoped to this job's subject.
		cons, err := publisher.js.CreateOrUpdateConsumer(r.Context(), natspkg.StreamName, jetstream.ConsumerConfig{
			FilterSubject: fmt.Sprintf("attestations.%s", jobID),
			AckPolicy:     jetstream.AckExplicitPolicy,
			DeliverPolicy: jetstream.DeliverNewPolicy,
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to create consumer",
				"job_id", jobID,
				"error", err,
			)
			fmt.Fprintf(w, "event: error\ndata: {\"error\": \"failed to subscribe\"}\n\n")
			return
		}

		msgChan := make(chan jetstream.Msg, 10)
		doneChan := make(chan struct{})

		go func() {
			defer close(doneChan)
			cc, err := cons.Consume(func(msg jetstream.Msg) {
				select {
				case msgChan <- msg:
				case <-r.Context().Done():
					return
				}
			})
			if err != nil {
				logger.ErrorContext(r.Context(), "failed to start consuming messages",
					"error", err,
				)
				return
			}
			<-r.Context().Done()
			cc.Stop()
		}()

		// Keepalive comments stop intermediaries from timing out the stream.
		keepalive := time.NewTicker(10 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush()

			case msg := <-msgChan:
				var event natspkg.AttestationEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					logger.WarnContext(r.Context(), "failed to unmarshal event",
						"error", err,
					)
					msg.Ack()
					continue
				}

				data, err := json.Marshal(event)
				if err != nil {
					msg.Ack()
					continue
				}

				fmt.Fprintf(w, "event: attestation\ndata: %s\n\n", string(data))
				flush()
				msg.Ack()

				logger.DebugContext(r.Context(), "sent attestation event",
					"job_id", jobID,
					"status", event.Status,
				)

				// Lifecycle events end at a terminal status.
				if event.Status == string(jobs.StatusDone) || event.Status == string(jobs.StatusError) {
					return
				}

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"job_id", jobID,
					"remote_addr", r.RemoteAddr,
				)
				return

			case <-doneChan:
				return
			}
		}
	})
}
