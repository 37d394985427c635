// Package alchemy fetches EVM asset transfers through the Alchemy
// Transfers API and normalizes them into ledger rows.
package alchemy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/ratelimit"

	"github.com/veritax/veritax/service/ledger"
	"github.com/veritax/veritax/service/metrics"
)

const (
	// MainnetChainID is Ethereum mainnet.
	MainnetChainID uint64 = 1
	// SepoliaChainID is the Sepolia testnet.
	SepoliaChainID uint64 = 11155111

	// maxTransfersPerPage is the Alchemy page cap, 1000 hex-encoded.
	maxTransfersPerPage = "0x3e8"

	defaultRequestsPerSecond = 5
	requestTimeout           = 30 * time.Second
)

// transferCategories are the Alchemy transfer categories we ask for.
var transferCategories = []string{"external", "erc20", "erc721", "erc1155"}

// Client is an Alchemy Transfers API client. Outbound calls are rate
// limited so a multi-wallet fetch stays within the provider's quota.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	chainID    uint64
	chainLabel string
	limiter    ratelimit.Limiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates an Alchemy client. baseURL is the network endpoint
// without the trailing API key, e.g. "https://eth-mainnet.g.alchemy.com/v2".
// metrics may be nil.
func NewClient(baseURL, apiKey string, chainID uint64, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		chainID:    chainID,
		chainLabel: fmt.Sprintf("evm-%d", chainID),
		limiter:    ratelimit.New(defaultRequestsPerSecond),
		metrics:    m,
		logger:     logger,
	}
}

// getAssetTransfersParams is the parameter object for
// alchemy_getAssetTransfers.
type getAssetTransfersParams struct {
	FromBlock    string   `json:"fromBlock"`
	ToBlock      string   `json:"toBlock"`
	FromAddress  string   `json:"fromAddress,omitempty"`
	ToAddress    string   `json:"toAddress,omitempty"`
	Category     []string `json:"category"`
	WithMetadata bool     `json:"withMetadata"`
	MaxCount     string   `json:"maxCount"`
}

type jsonRPCRequest struct {
	ID      int           `json:"id"`
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonRPCResponse struct {
	Result *transfersResult `json:"result"`
	Error  *jsonRPCError    `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type transfersResult struct {
	Transfers []assetTransfer `json:"transfers"`
}

// assetTransfer is one entry from the Alchemy response. Value is a
// decimal string via json.Number so precision survives the transport.
type assetTransfer struct {
	BlockNum string           `json:"blockNum"`
	Hash     string           `json:"hash"`
	From     string           `json:"from"`
	To       *string          `json:"to"`
	Value    *json.Number     `json:"value"`
	Asset    *string          `json:"asset"`
	Category string           `json:"category"`
	Metadata transferMetadata `json:"metadata"`
}

type transferMetadata struct {
	BlockTimestamp string `json:"blockTimestamp"`
}

// GetTransfers fetches all inbound and outbound transfers for a wallet
// and returns them as normalized ledger rows sorted by block time.
// Rows carry CategoryUnknown; categorization happens downstream where
// the full owned-wallet set is known.
func (c *Client) GetTransfers(ctx context.Context, wallet string) ([]ledger.LedgerRow, error) {
	incoming, err := c.fetchTransfers(ctx, "", wallet)
	if err != nil {
		return nil, fmt.Errorf("fetch incoming transfers: %w", err)
	}

	outgoing, err := c.fetchTransfers(ctx, wallet, "")
	if err != nil {
		return nil, fmt.Errorf("fetch outgoing transfers: %w", err)
	}

	rows := make([]ledger.LedgerRow, 0, len(incoming)+len(outgoing))
	dropped := 0

	for i := range incoming {
		if row, ok := c.normalizeTransfer(&incoming[i], wallet, ledger.DirectionIn); ok {
			rows = append(rows, row)
		} else {
			dropped++
		}
	}
	for i := range outgoing {
		if row, ok := c.normalizeTransfer(&outgoing[i], wallet, ledger.DirectionOut); ok {
			rows = append(rows, row)
		} else {
			dropped++
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].BlockTime < rows[j].BlockTime
	})

	if c.metrics != nil {
		c.metrics.RecordTransfersFetched(c.chainLabel, "in", len(incoming))
		c.metrics.RecordTransfersFetched(c.chainLabel, "out", len(outgoing))
		if dropped > 0 {
			c.metrics.RecordTransfersDropped(c.chainLabel, "zero_or_malformed", dropped)
		}
	}

	c.logger.DebugContext(ctx, "fetched transfers",
		"wallet", wallet,
		"incoming", len(incoming),
		"outgoing", len(outgoing),
		"dropped", dropped,
	)
	return rows, nil
}

// fetchTransfers makes one alchemy_getAssetTransfers call. Exactly one
// of fromAddress/toAddress is set.
func (c *Client) fetchTransfers(ctx context.Context, fromAddress, toAddress string) ([]assetTransfer, error) {
	c.limiter.Take()

	params := getAssetTransfersParams{
		FromBlock:    "0x0",
		ToBlock:      "latest",
		FromAddress:  fromAddress,
		ToAddress:    toAddress,
		Category:     transferCategories,
		WithMetadata: true,
		MaxCount:     maxTransfersPerPage,
	}

	body, err := json.Marshal(jsonRPCRequest{
		ID:      1,
		JSONRPC: "2.0",
		Method:  "alchemy_getAssetTransfers",
		Params:  []interface{}{params},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordRPCCall("alchemy", "alchemy_getAssetTransfers", status, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("call alchemy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		if c.metrics != nil {
			c.metrics.RecordRateLimitHit("alchemy")
		}
		return nil, fmt.Errorf("alchemy rate limited: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alchemy returned status %d", resp.StatusCode)
	}

	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("alchemy API error: %s", rpcResp.Error.Message)
	}
	if rpcResp.Result == nil {
		return nil, nil
	}
	return rpcResp.Result.Transfers, nil
}

// normalizeTransfer turns one Alchemy transfer into a ledger row.
// Transfers with zero or missing values are dropped rather than carried
// as noise. The external category is the chain's native asset.
func (c *Client) normalizeTransfer(t *assetTransfer, ownerWallet string, direction ledger.Direction) (ledger.LedgerRow, bool) {
	if t.Value == nil {
		return ledger.LedgerRow{}, false
	}
	amount := t.Value.String()
	if !positiveAmount(amount) {
		return ledger.LedgerRow{}, false
	}

	asset := "UNKNOWN"
	var decimals uint8 = 18
	if t.Category == "external" {
		asset = "ETH"
	} else if t.Asset != nil && *t.Asset != "" {
		asset = *t.Asset
	}

	var counterparty *string
	if direction == ledger.DirectionIn {
		from := strings.ToLower(t.From)
		counterparty = &from
	} else if t.To != nil {
		to := strings.ToLower(*t.To)
		counterparty = &to
	}

	return ledger.LedgerRow{
		ChainID:      c.chainID,
		OwnerWallet:  strings.ToLower(ownerWallet),
		TxHash:       t.Hash,
		BlockTime:    parseBlockTimestamp(t.Metadata.BlockTimestamp),
		Asset:        asset,
		Amount:       amount,
		Decimals:     decimals,
		Direction:    direction,
		Counterparty: counterparty,
		Category:     ledger.CategoryUnknown,
		Confidence:   0,
	}, true
}

// positiveAmount reports whether a decimal string has a nonzero digit
// and no leading minus sign.
func positiveAmount(s string) bool {
	if s == "" || s[0] == '-' {
		return false
	}
	for _, r := range s {
		if r >= '1' && r <= '9' {
			return true
		}
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return false
}

// parseBlockTimestamp converts an RFC 3339 block timestamp to unix
// seconds. Unparseable timestamps degrade to zero rather than dropping
// the row.
func parseBlockTimestamp(ts string) uint64 {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return 0
	}
	sec := t.Unix()
	if sec < 0 {
		return 0
	}
	return uint64(sec)
}
