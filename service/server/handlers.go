package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/veritax/veritax/service/jobs"
	"github.com/veritax/veritax/service/ledger"
	"github.com/veritax/veritax/service/prover"
	"github.com/veritax/veritax/service/tax"
)

const (
	maxRequestBodySize = 4 << 20 // 4MB, a full ledger can run long
	maxWalletsPerBatch = 25
)

// decodeBody decodes a size-limited JSON request body.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if strings.Contains(err.Error(), "http: request body too large") {
			return fmt.Errorf("request body too large: maximum size is 4MB")
		}
		return fmt.Errorf("invalid request body: must be valid JSON")
	}
	return nil
}

// handleCreateAttestation returns a handler that submits an attestation
// job. The job runs asynchronously; the response carries the job id to
// poll.
// POST /api/v1/attestations
func handleCreateAttestation(store *jobs.Store, runner jobs.Runner, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var input ledger.TaxInput
		if err := decodeBody(w, r, &input); err != nil {
			logger.Debug("failed to decode attestation request", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Invalid user types fail synchronously rather than burning a
		// proving run.
		if !input.UserType.Valid() {
			writeError(w, fmt.Sprintf("invalid user_type: %q", input.UserType), http.StatusBadRequest)
			return
		}

		job := store.Create()
		if err := runner.Start(r.Context(), job.ID, input); err != nil {
			logger.Error("failed to start attestation job", "job_id", job.ID, "error", err)
			if ferr := store.Fail(job.ID, err.Error()); ferr != nil {
				logger.Error("could not record job failure", "job_id", job.ID, "error", ferr)
			}
			writeError(w, "failed to start attestation job", http.StatusInternalServerError)
			return
		}

		logger.Info("attestation job submitted",
			"job_id", job.ID,
			"user_type", input.UserType,
			"ledger_rows", len(input.Ledger),
		)
		writeJSON(w, map[string]string{
			"job_id": job.ID,
			"status": string(job.Status),
		}, http.StatusAccepted)
	})
}

// handleGetAttestation returns a handler that reports job state. An
// unknown id is 404, distinct from a known job that failed.
// GET /api/v1/attestations/{id}
func handleGetAttestation(store *jobs.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		job, err := store.Get(id)
		if err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				writeError(w, "attestation job not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get job", "job_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, job, http.StatusOK)
	})
}

// handleGetVKey returns the verification key hash clients need to
// verify proofs independently.
// GET /api/v1/vkey
func handleGetVKey(p prover.Prover) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"vk_hash": p.VKHash()}, http.StatusOK)
	})
}

// handleTaxEstimate returns a handler that computes a synchronous tax
// breakdown without producing a proof. Rows the client left
// uncategorized are run through the rule cascade first.
// POST /api/v1/tax/estimate
func handleTaxEstimate(categorizer *ledger.Categorizer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var input ledger.TaxInput
		if err := decodeBody(w, r, &input); err != nil {
			logger.Debug("failed to decode estimate request", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if !input.UserType.Valid() {
			writeError(w, fmt.Sprintf("invalid user_type: %q", input.UserType), http.StatusBadRequest)
			return
		}

		categorizeUnknown(categorizer, &input)
		breakdown := tax.Compute(input)

		logger.Debug("tax estimate computed",
			"user_type", input.UserType,
			"ledger_rows", len(input.Ledger),
			"total_tax_inr", breakdown.TotalTaxINR,
		)
		writeJSON(w, map[string]interface{}{
			"breakdown":       breakdown,
			"total_tax_paisa": breakdown.TotalTaxPaisa(),
			"ledger":          input.Ledger,
		}, http.StatusOK)
	})
}

// categorizeUnknown runs the rule cascade over rows the client did not
// categorize, leaving explicit categories and overrides untouched.
func categorizeUnknown(categorizer *ledger.Categorizer, input *ledger.TaxInput) {
	if categorizer == nil {
		return
	}
	owned := input.OwnedSet()
	for i := range input.Ledger {
		row := &input.Ledger[i]
		if row.UserOverride || (row.Category != "" && row.Category != ledger.CategoryUnknown) {
			continue
		}
		cat, conf := categorizer.Categorize(row, owned)
		row.Category = cat
		row.Confidence = conf
	}
}

// walletCount pairs a wallet with the number of rows fetched for it.
type walletCount struct {
	Wallet string `json:"wallet"`
	Count  int    `json:"count"`
}

// handleGetTransfers returns a handler that fetches and categorizes the
// combined on-chain history of a wallet set.
// POST /api/v1/transfers
func handleGetTransfers(fetcher TransferFetcher, categorizer *ledger.Categorizer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Wallets []string `json:"wallets"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			logger.Debug("failed to decode transfers request", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		wallets := cleanWallets(req.Wallets)
		if len(wallets) == 0 {
			writeError(w, "no wallets provided", http.StatusBadRequest)
			return
		}
		if len(wallets) > maxWalletsPerBatch {
			writeError(w, fmt.Sprintf("too many wallets: maximum is %d", maxWalletsPerBatch), http.StatusBadRequest)
			return
		}

		var allRows []ledger.LedgerRow
		counts := make([]walletCount, 0, len(wallets))
		for _, wallet := range wallets {
			rows, err := fetcher.GetTransfers(r.Context(), wallet)
			if err != nil {
				logger.Error("failed to fetch transfers", "wallet", wallet, "error", err)
				writeError(w, fmt.Sprintf("failed to fetch transfers for %s", wallet), http.StatusInternalServerError)
				return
			}
			counts = append(counts, walletCount{Wallet: wallet, Count: len(rows)})
			allRows = append(allRows, rows...)
		}

		sort.SliceStable(allRows, func(i, j int) bool {
			return allRows[i].BlockTime < allRows[j].BlockTime
		})

		if categorizer != nil {
			owned := make(map[string]bool, len(wallets))
			for _, wallet := range wallets {
				owned[strings.ToLower(wallet)] = true
			}
			categorizer.Apply(allRows, owned)
		}

		logger.Debug("transfers fetched", "wallets", len(wallets), "rows", len(allRows))
		writeJSON(w, map[string]interface{}{
			"ledger":        allRows,
			"wallet_counts": counts,
		}, http.StatusOK)
	})
}

// handleResolveENS returns a handler that resolves an ENS root name to
// its subdomains and their addresses.
// GET /api/v1/ens/{name}
func handleResolveENS(resolver NameResolver, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if strings.TrimSpace(name) == "" {
			writeError(w, "ens name is required", http.StatusBadRequest)
			return
		}

		names, err := resolver.ResolveSubdomains(r.Context(), name)
		if err != nil {
			logger.Error("failed to resolve ens name", "name", name, "error", err)
			writeError(w, "failed to resolve ens name", http.StatusBadGateway)
			return
		}

		writeJSON(w, map[string]interface{}{
			"name":       strings.ToLower(strings.TrimSpace(name)),
			"subdomains": names,
		}, http.StatusOK)
	})
}

// cleanWallets trims and deduplicates a wallet list, preserving order.
func cleanWallets(wallets []string) []string {
	seen := make(map[string]bool, len(wallets))
	out := make([]string, 0, len(wallets))
	for _, w := range wallets {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		key := strings.ToLower(w)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, w)
	}
	return out
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
