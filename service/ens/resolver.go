// Package ens resolves ENS names to wallet addresses through the ENS
// subgraph. A family or DAO registers its members as subdomains of a
// root name, so one lookup yields the whole owned-wallet set.
package ens

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/veritax/veritax/service/metrics"
)

const requestTimeout = 15 * time.Second

// subdomainsQuery fetches a root domain and its first hundred
// subdomains with their resolved addresses.
const subdomainsQuery = `
query GetSubdomains($name: String!) {
  domains(where: { name: $name }) {
    name
    labelName
    resolvedAddress {
      id
    }
    subdomains(first: 100) {
      name
      labelName
      resolvedAddress {
        id
      }
    }
  }
}`

// ResolvedName is one ENS name with its resolved address. Address is
// nil for registered but unresolved subdomains.
type ResolvedName struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Address *string `json:"address,omitempty"`
}

// Resolver queries the ENS subgraph.
type Resolver struct {
	httpClient  *http.Client
	subgraphURL string
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewResolver creates a subgraph-backed resolver. metrics may be nil.
func NewResolver(subgraphURL string, m *metrics.Metrics, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		httpClient:  &http.Client{Timeout: requestTimeout},
		subgraphURL: subgraphURL,
		metrics:     m,
		logger:      logger,
	}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLResponse struct {
	Data   *domainsData   `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type domainsData struct {
	Domains []domainNode `json:"domains"`
}

type domainNode struct {
	Name            *string       `json:"name"`
	LabelName       *string       `json:"labelName"`
	ResolvedAddress *addressNode  `json:"resolvedAddress"`
	Subdomains      []domainNode  `json:"subdomains"`
}

type addressNode struct {
	ID string `json:"id"`
}

// ResolveSubdomains returns the root domain plus all of its subdomains.
// The root appears only when it resolves to an address; subdomains are
// returned even when unresolved so callers can show registration state.
func (r *Resolver) ResolveSubdomains(ctx context.Context, rootName string) ([]ResolvedName, error) {
	rootName = strings.ToLower(strings.TrimSpace(rootName))
	if rootName == "" {
		return nil, fmt.Errorf("ens name is required")
	}

	body, err := json.Marshal(graphQLRequest{
		Query:     subdomainsQuery,
		Variables: map[string]interface{}{"name": rootName},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.subgraphURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if r.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		r.metrics.RecordRPCCall("ens-subgraph", "GetSubdomains", status, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("call subgraph: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subgraph returned status %d", resp.StatusCode)
	}

	var gqlResp graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("subgraph error: %s", gqlResp.Errors[0].Message)
	}
	if gqlResp.Data == nil {
		return nil, fmt.Errorf("subgraph returned no data")
	}

	var results []ResolvedName
	for _, domain := range gqlResp.Data.Domains {
		if domain.Name != nil && domain.ResolvedAddress != nil {
			results = append(results, ResolvedName{
				Name:    *domain.Name,
				Label:   labelOrName(domain.LabelName, *domain.Name),
				Address: &domain.ResolvedAddress.ID,
			})
		}
		for _, sub := range domain.Subdomains {
			if sub.Name == nil {
				continue
			}
			entry := ResolvedName{
				Name:  *sub.Name,
				Label: labelOrName(sub.LabelName, *sub.Name),
			}
			if sub.ResolvedAddress != nil {
				entry.Address = &sub.ResolvedAddress.ID
			}
			results = append(results, entry)
		}
	}

	r.logger.DebugContext(ctx, "resolved ens name", "name", rootName, "entries", len(results))
	return results, nil
}

// Addresses extracts the resolved addresses from a result set,
// lowercased for address comparison. Unresolved names are absent.
func Addresses(names []ResolvedName) []string {
	var addrs []string
	for _, n := range names {
		if n.Address != nil && *n.Address != "" {
			addrs = append(addrs, strings.ToLower(*n.Address))
		}
	}
	return addrs
}

func labelOrName(label *string, name string) string {
	if label != nil && *label != "" {
		return *label
	}
	return name
}
