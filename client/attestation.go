// Package client is the HTTP client for the veritax attestation
// service. It mirrors the server's JSON surface with plain structs so
// callers do not need to depend on server internals.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/veritax/veritax/service/ledger"
	"github.com/veritax/veritax/service/tax"
)

// ErrNotFound is returned when the server does not know the requested
// attestation job.
var ErrNotFound = errors.New("attestation job not found")

// Attestation is an attestation job as reported by the server.
type Attestation struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Result      *Artifacts `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has finished, successfully or not.
func (a *Attestation) Terminal() bool {
	return a.Status == "done" || a.Status == "error"
}

// Artifacts holds the proof bundle produced for a completed job.
type Artifacts struct {
	Proof            string `json:"proof"`
	PublicValues     string `json:"public_values"`
	VKHash           string `json:"vk_hash"`
	TotalTaxPaisa    uint64 `json:"total_tax_paisa"`
	LedgerCommitment string `json:"ledger_commitment"`
}

// TaxEstimate is the server's plaintext tax computation, including the
// ledger rows after categorization.
type TaxEstimate struct {
	Breakdown     tax.Breakdown      `json:"breakdown"`
	TotalTaxPaisa uint64             `json:"total_tax_paisa"`
	Ledger        []ledger.LedgerRow `json:"ledger"`
}

// TransferReport is the merged, categorized transfer history for a set
// of wallets.
type TransferReport struct {
	Ledger       []ledger.LedgerRow `json:"ledger"`
	WalletCounts []WalletCount      `json:"wallet_counts"`
}

// WalletCount pairs a wallet with the number of rows fetched for it.
type WalletCount struct {
	Wallet string `json:"wallet"`
	Count  int    `json:"count"`
}

// ResolvedName is an ENS name and the address it resolves to, if any.
type ResolvedName struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Address *string `json:"address,omitempty"`
}

// Client is the HTTP client for the veritax attestation service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new attestation service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// SubmitAttestation asks the server to compute and prove an attestation
// for the given input. It returns the job ID to poll or stream.
func (c *Client) SubmitAttestation(ctx context.Context, input ledger.TaxInput) (string, error) {
	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := c.do(ctx, "POST", "/api/v1/attestations", input, &resp, http.StatusAccepted); err != nil {
		return "", err
	}

	c.logger.Debug("attestation submitted", "job_id", resp.JobID)
	return resp.JobID, nil
}

// GetAttestation retrieves the current state of an attestation job.
func (c *Client) GetAttestation(ctx context.Context, jobID string) (*Attestation, error) {
	var job Attestation
	path := "/api/v1/attestations/" + url.PathEscape(jobID)
	if err := c.do(ctx, "GET", path, nil, &job, http.StatusOK); err != nil {
		return nil, err
	}
	return &job, nil
}

// AwaitAttestation polls until the job reaches a terminal status or the
// context is cancelled. The returned attestation may carry an error
// status; callers should check Status before using Result.
func (c *Client) AwaitAttestation(ctx context.Context, jobID string, pollInterval time.Duration) (*Attestation, error) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		job, err := c.GetAttestation(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// VKeyHash returns the verification key hash the server proves against.
func (c *Client) VKeyHash(ctx context.Context) (string, error) {
	var resp struct {
		VKHash string `json:"vk_hash"`
	}
	if err := c.do(ctx, "GET", "/api/v1/vkey", nil, &resp, http.StatusOK); err != nil {
		return "", err
	}
	return resp.VKHash, nil
}

// EstimateTax computes a plaintext tax breakdown without producing a
// proof. Rows without a category are categorized server-side.
func (c *Client) EstimateTax(ctx context.Context, input ledger.TaxInput) (*TaxEstimate, error) {
	var estimate TaxEstimate
	if err := c.do(ctx, "POST", "/api/v1/tax/estimate", input, &estimate, http.StatusOK); err != nil {
		return nil, err
	}
	return &estimate, nil
}

// GetTransfers fetches and categorizes the transfer history for the
// given wallets.
func (c *Client) GetTransfers(ctx context.Context, wallets []string) (*TransferReport, error) {
	reqBody := struct {
		Wallets []string `json:"wallets"`
	}{Wallets: wallets}

	var report TransferReport
	if err := c.do(ctx, "POST", "/api/v1/transfers", reqBody, &report, http.StatusOK); err != nil {
		return nil, err
	}
	return &report, nil
}

// ResolveENS lists the subdomains of an ENS name with their resolved
// addresses.
func (c *Client) ResolveENS(ctx context.Context, name string) ([]ResolvedName, error) {
	var resp struct {
		Name       string         `json:"name"`
		Subdomains []ResolvedName `json:"subdomains"`
	}
	path := "/api/v1/ens/" + url.PathEscape(name)
	if err := c.do(ctx, "GET", path, nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Subdomains, nil
}

// do issues a JSON request and decodes the response into out when the
// status matches wantStatus. A nil body sends no payload; a nil out
// discards the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, wantStatus int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
