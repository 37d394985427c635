package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"

	"github.com/veritax/veritax/service/ledger"
)

// Client is a thin wrapper over the Temporal SDK client that knows how
// to start and await attestation workflows on the configured task queue.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartAttestation starts an AttestationWorkflow for the given job. The
// workflow ID is the job ID, so a duplicate submission of the same job
// fails instead of running twice.
func (c *Client) StartAttestation(ctx context.Context, jobID string, in ledger.TaxInput) error {
	c.logger.Debug("starting attestation workflow",
		"job_id", jobID,
		"ledger_rows", len(in.Ledger),
	)

	_, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        jobID,
		TaskQueue: c.taskQueue,
	}, AttestationWorkflow, AttestationWorkflowInput{
		JobID: jobID,
		Input: in,
	})
	if err != nil {
		c.logger.Error("failed to start attestation workflow",
			"job_id", jobID,
			"error", err,
		)
		return fmt.Errorf("failed to start workflow %q: %w", jobID, err)
	}

	c.logger.Info("attestation workflow started", "job_id", jobID)
	return nil
}

// AwaitAttestation blocks until the workflow for the given job reaches
// a terminal state and returns its result.
func (c *Client) AwaitAttestation(ctx context.Context, jobID string) (*AttestationWorkflowResult, error) {
	var result AttestationWorkflowResult
	run := c.client.GetWorkflow(ctx, jobID, "")
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("workflow %q: %w", jobID, err)
	}
	return &result, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
