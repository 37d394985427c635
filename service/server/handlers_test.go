package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritax/veritax/service/ens"
	"github.com/veritax/veritax/service/jobs"
	"github.com/veritax/veritax/service/ledger"
	"github.com/veritax/veritax/service/prover"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner implements jobs.Runner and records submissions without
// running anything.
type fakeRunner struct {
	started []string
	err     error
}

func (f *fakeRunner) Start(ctx context.Context, jobID string, in ledger.TaxInput) error {
	if f.err != nil {
		return f.err
	}
	f.started = append(f.started, jobID)
	return nil
}

// fakeFetcher implements TransferFetcher from a canned per-wallet map.
type fakeFetcher struct {
	rows map[string][]ledger.LedgerRow
	err  error
}

func (f *fakeFetcher) GetTransfers(ctx context.Context, wallet string) ([]ledger.LedgerRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[wallet], nil
}

// fakeResolver implements NameResolver.
type fakeResolver struct {
	names []ens.ResolvedName
	err   error
}

func (f *fakeResolver) ResolveSubdomains(ctx context.Context, rootName string) ([]ens.ResolvedName, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.names, nil
}

func attestationRequestBody() string {
	return `{
		"user_type": "individual",
		"wallets": ["0xabc"],
		"ledger": [{
			"chain_id": 1,
			"owner_wallet": "0xabc",
			"tx_hash": "0x01",
			"block_time": 1700000000,
			"asset": "ETH",
			"amount": "1.5",
			"decimals": 18,
			"direction": "in",
			"counterparty": "0xdef",
			"category": "income",
			"confidence": 0.9
		}],
		"prices": [{"asset": "ETH", "usd_price": "2000"}],
		"usd_inr_rate": "83.00"
	}`
}

func TestHandleCreateAttestation(t *testing.T) {
	store := jobs.NewStore(testLogger())
	runner := &fakeRunner{}
	handler := handleCreateAttestation(store, runner, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attestations", strings.NewReader(attestationRequestBody()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["job_id"])
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, []string{resp["job_id"]}, runner.started)

	job, err := store.Get(resp["job_id"])
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, job.Status)
}

func TestHandleCreateAttestation_InvalidUserType(t *testing.T) {
	store := jobs.NewStore(testLogger())
	runner := &fakeRunner{}
	handler := handleCreateAttestation(store, runner, testLogger())

	body := `{"user_type": "partnership", "wallets": ["0xabc"], "usd_inr_rate": "83"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/attestations", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid user_type")
	assert.Empty(t, runner.started)
	assert.Equal(t, 0, store.Len())
}

func TestHandleCreateAttestation_InvalidJSON(t *testing.T) {
	store := jobs.NewStore(testLogger())
	handler := handleCreateAttestation(store, &fakeRunner{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attestations", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateAttestation_RunnerStartFailure(t *testing.T) {
	store := jobs.NewStore(testLogger())
	runner := &fakeRunner{err: assert.AnError}
	handler := handleCreateAttestation(store, runner, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attestations", strings.NewReader(attestationRequestBody()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	// The failed submission is recorded so polling sees the error.
	require.Equal(t, 1, store.Len())
}

func TestHandleGetAttestation(t *testing.T) {
	store := jobs.NewStore(testLogger())
	handler := handleGetAttestation(store, testLogger())

	job := store.Create()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attestations/"+job.ID, nil)
	req.SetPathValue("id", job.ID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, jobs.StatusPending, got.Status)
}

func TestHandleGetAttestation_Done(t *testing.T) {
	store := jobs.NewStore(testLogger())
	handler := handleGetAttestation(store, testLogger())

	job := store.Create()
	require.NoError(t, store.Complete(job.ID, &prover.Artifacts{
		Proof:         "cHJvb2Y=",
		TotalTaxPaisa: 2589600,
		VKHash:        "vk",
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attestations/"+job.ID, nil)
	req.SetPathValue("id", job.ID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, jobs.StatusDone, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, uint64(2589600), got.Result.TotalTaxPaisa)
}

func TestHandleGetAttestation_NotFound(t *testing.T) {
	store := jobs.NewStore(testLogger())
	handler := handleGetAttestation(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attestations/nope", nil)
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
}

func TestHandleGetVKey(t *testing.T) {
	p := prover.NewLocalProver(testLogger())
	handler := handleGetVKey(p)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vkey", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, p.VKHash(), resp["vk_hash"])
}

func TestHandleTaxEstimate(t *testing.T) {
	categorizer := ledger.NewCategorizer(ledger.KnownContracts{})
	handler := handleTaxEstimate(categorizer, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tax/estimate", strings.NewReader(attestationRequestBody()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Breakdown struct {
			ProfessionalIncomeINR string `json:"professional_income_inr"`
			TotalTaxINR           string `json:"total_tax_inr"`
		} `json:"breakdown"`
		TotalTaxPaisa uint64 `json:"total_tax_paisa"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// 1.5 ETH * $2000 * 83 INR/USD = 249,000 INR, below the first slab.
	assert.Equal(t, "249000.00", resp.Breakdown.ProfessionalIncomeINR)
	assert.Equal(t, "0.00", resp.Breakdown.TotalTaxINR)
	assert.Equal(t, uint64(0), resp.TotalTaxPaisa)
}

func TestHandleTaxEstimate_CategorizesUnknownRows(t *testing.T) {
	categorizer := ledger.NewCategorizer(ledger.KnownContracts{})
	handler := handleTaxEstimate(categorizer, testLogger())

	body := `{
		"user_type": "individual",
		"wallets": ["0xabc"],
		"ledger": [{
			"chain_id": 1,
			"owner_wallet": "0xabc",
			"tx_hash": "0x01",
			"block_time": 1700000000,
			"asset": "ETH",
			"amount": "1",
			"decimals": 18,
			"direction": "in",
			"counterparty": "0xdef"
		}],
		"usd_inr_rate": "83.00"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tax/estimate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Ledger []ledger.LedgerRow `json:"ledger"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Ledger, 1)

	// Unrecognized inflows default to income at low confidence.
	assert.Equal(t, ledger.CategoryIncome, resp.Ledger[0].Category)
	assert.InDelta(t, 0.60, resp.Ledger[0].Confidence, 0.001)
}

func TestHandleTaxEstimate_InvalidUserType(t *testing.T) {
	handler := handleTaxEstimate(ledger.NewCategorizer(ledger.KnownContracts{}), testLogger())

	body := `{"user_type": "trust", "usd_inr_rate": "83"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tax/estimate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetTransfers(t *testing.T) {
	cpB := "0xbbb"
	cpX := "0xccc"
	fetcher := &fakeFetcher{rows: map[string][]ledger.LedgerRow{
		"0xAAA": {
			{ChainID: 1, OwnerWallet: "0xaaa", TxHash: "0x2", BlockTime: 200, Asset: "ETH", Amount: "1", Decimals: 18, Direction: ledger.DirectionIn, Counterparty: &cpB, Category: ledger.CategoryUnknown},
		},
		"0xBBB": {
			{ChainID: 1, OwnerWallet: "0xbbb", TxHash: "0x1", BlockTime: 100, Asset: "ETH", Amount: "2", Decimals: 18, Direction: ledger.DirectionIn, Counterparty: &cpX, Category: ledger.CategoryUnknown},
		},
	}}
	categorizer := ledger.NewCategorizer(ledger.KnownContracts{})
	handler := handleGetTransfers(fetcher, categorizer, testLogger())

	body := `{"wallets": ["0xAAA", "0xBBB"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Ledger       []ledger.LedgerRow `json:"ledger"`
		WalletCounts []walletCount      `json:"wallet_counts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Ledger, 2)
	require.Len(t, resp.WalletCounts, 2)

	// Merged rows sorted by block time.
	assert.Equal(t, "0x1", resp.Ledger[0].TxHash)
	assert.Equal(t, "0x2", resp.Ledger[1].TxHash)

	// A transfer from another requested wallet is internal; an external
	// inflow defaults to income.
	assert.Equal(t, ledger.CategoryIncome, resp.Ledger[0].Category)
	assert.Equal(t, ledger.CategoryInternal, resp.Ledger[1].Category)

	assert.Equal(t, walletCount{Wallet: "0xAAA", Count: 1}, resp.WalletCounts[0])
	assert.Equal(t, walletCount{Wallet: "0xBBB", Count: 1}, resp.WalletCounts[1])
}

func TestHandleGetTransfers_NoWallets(t *testing.T) {
	handler := handleGetTransfers(&fakeFetcher{}, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(`{"wallets": [" ", ""]}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no wallets provided")
}

func TestHandleGetTransfers_FetchError(t *testing.T) {
	handler := handleGetTransfers(&fakeFetcher{err: assert.AnError}, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(`{"wallets": ["0xabc"]}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "0xabc")
}

func TestHandleResolveENS(t *testing.T) {
	addr := "0xAlice"
	resolver := &fakeResolver{names: []ens.ResolvedName{
		{Name: "alice.family.eth", Label: "alice", Address: &addr},
		{Name: "bob.family.eth", Label: "bob"},
	}}
	handler := handleResolveENS(resolver, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ens/family.eth", nil)
	req.SetPathValue("name", "family.eth")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Name       string             `json:"name"`
		Subdomains []ens.ResolvedName `json:"subdomains"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "family.eth", resp.Name)
	require.Len(t, resp.Subdomains, 2)
}

func TestHandleResolveENS_ResolverError(t *testing.T) {
	handler := handleResolveENS(&fakeResolver{err: assert.AnError}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ens/family.eth", nil)
	req.SetPathValue("name", "family.eth")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleStreamAttestation_NotFound(t *testing.T) {
	store := jobs.NewStore(testLogger())
	handler := handleStreamAttestation(nil, store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attestations/nope/stream", nil)
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStreamAttestation_TerminalJobSnapshot(t *testing.T) {
	store := jobs.NewStore(testLogger())
	job := store.Create()
	require.NoError(t, store.Complete(job.ID, &prover.Artifacts{TotalTaxPaisa: 42}))

	handler := handleStreamAttestation(nil, store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attestations/"+job.ID+"/stream", nil)
	req.SetPathValue("id", job.ID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: connected")
	assert.Contains(t, rec.Body.String(), "event: attestation")
	assert.Contains(t, rec.Body.String(), `"total_tax_paisa":42`)
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/attestations", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCleanWallets(t *testing.T) {
	got := cleanWallets([]string{" 0xAAA ", "0xaaa", "", "0xBBB"})
	assert.Equal(t, []string{"0xAAA", "0xBBB"}, got)
}
