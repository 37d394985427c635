package alchemy

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritax/veritax/service/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// transferFixture builds a raw Alchemy transfer entry for the test server.
func transferFixture(hash, from, to, value, asset, category, timestamp string) map[string]interface{} {
	entry := map[string]interface{}{
		"blockNum": "0x10",
		"hash":     hash,
		"from":     from,
		"category": category,
		"metadata": map[string]string{"blockTimestamp": timestamp},
	}
	if to != "" {
		entry["to"] = to
	}
	if value != "" {
		entry["value"] = json.RawMessage(value)
	}
	if asset != "" {
		entry["asset"] = asset
	}
	return entry
}

// newTransfersServer returns a test server that answers
// alchemy_getAssetTransfers with incoming transfers when toAddress is
// set and outgoing transfers when fromAddress is set.
func newTransfersServer(t *testing.T, incoming, outgoing []map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params []struct {
				FromAddress string `json:"fromAddress"`
				ToAddress   string `json:"toAddress"`
			} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "alchemy_getAssetTransfers", req.Method)
		require.Len(t, req.Params, 1)

		transfers := outgoing
		if req.Params[0].ToAddress != "" {
			transfers = incoming
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"transfers": transfers},
		})
	}))
}

func TestGetTransfers_NormalizesAndSorts(t *testing.T) {
	incoming := []map[string]interface{}{
		transferFixture("0xaaa", "0xSender", "0xOwner", "1.5", "", "external", "2024-03-01T10:00:00.000Z"),
		transferFixture("0xbbb", "0xdex", "0xOwner", "250.75", "USDC", "erc20", "2024-01-15T10:30:00.000Z"),
	}
	outgoing := []map[string]interface{}{
		transferFixture("0xccc", "0xOwner", "0xRecipient", "0.25", "", "external", "2024-02-01T00:00:00.000Z"),
	}

	srv := newTransfersServer(t, incoming, outgoing)
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", SepoliaChainID, nil, testLogger())
	rows, err := c.GetTransfers(t.Context(), "0xOwner")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Sorted by block time across both directions.
	assert.Equal(t, "0xbbb", rows[0].TxHash)
	assert.Equal(t, "0xccc", rows[1].TxHash)
	assert.Equal(t, "0xaaa", rows[2].TxHash)

	// External transfers are the native asset at 18 decimals.
	eth := rows[2]
	assert.Equal(t, "ETH", eth.Asset)
	assert.Equal(t, uint8(18), eth.Decimals)
	assert.Equal(t, "1.5", eth.Amount)
	assert.Equal(t, ledger.DirectionIn, eth.Direction)
	assert.Equal(t, SepoliaChainID, eth.ChainID)

	// Owner and counterparty addresses are lowercased.
	assert.Equal(t, "0xowner", eth.OwnerWallet)
	require.NotNil(t, eth.Counterparty)
	assert.Equal(t, "0xsender", *eth.Counterparty)

	// Outgoing counterparty is the recipient.
	out := rows[1]
	assert.Equal(t, ledger.DirectionOut, out.Direction)
	require.NotNil(t, out.Counterparty)
	assert.Equal(t, "0xrecipient", *out.Counterparty)

	// ERC-20 keeps its reported symbol.
	assert.Equal(t, "USDC", rows[0].Asset)

	// Timestamps become unix seconds.
	assert.Equal(t, uint64(1705314600), rows[0].BlockTime)

	// Rows arrive uncategorized.
	for _, row := range rows {
		assert.Equal(t, ledger.CategoryUnknown, row.Category)
		assert.Zero(t, row.Confidence)
	}
}

func TestGetTransfers_DropsZeroAndMalformed(t *testing.T) {
	incoming := []map[string]interface{}{
		transferFixture("0x1", "0xa", "0xOwner", "0", "", "external", "2024-01-01T00:00:00Z"),
		transferFixture("0x2", "0xa", "0xOwner", "", "", "external", "2024-01-01T00:00:00Z"),
		transferFixture("0x3", "0xa", "0xOwner", "2.0", "", "external", "2024-01-01T00:00:00Z"),
	}

	srv := newTransfersServer(t, incoming, nil)
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", MainnetChainID, nil, testLogger())
	rows, err := c.GetTransfers(t.Context(), "0xOwner")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "0x3", rows[0].TxHash)
}

func TestGetTransfers_BadTimestampDegradesToZero(t *testing.T) {
	incoming := []map[string]interface{}{
		transferFixture("0x1", "0xa", "0xOwner", "1", "", "external", "not-a-timestamp"),
	}

	srv := newTransfersServer(t, incoming, nil)
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", MainnetChainID, nil, testLogger())
	rows, err := c.GetTransfers(t.Context(), "0xOwner")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(0), rows[0].BlockTime)
}

func TestGetTransfers_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": -32000, "message": "capacity exceeded"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", MainnetChainID, nil, testLogger())
	_, err := c.GetTransfers(t.Context(), "0xOwner")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capacity exceeded")
}

func TestGetTransfers_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", MainnetChainID, nil, testLogger())
	_, err := c.GetTransfers(t.Context(), "0xOwner")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestParseBlockTimestamp(t *testing.T) {
	assert.Equal(t, uint64(1705314600), parseBlockTimestamp("2024-01-15T10:30:00.000Z"))
	assert.Equal(t, uint64(0), parseBlockTimestamp(""))
	assert.Equal(t, uint64(0), parseBlockTimestamp("1969-12-31T23:59:59Z"))
}

func TestPositiveAmount(t *testing.T) {
	assert.True(t, positiveAmount("1.5"))
	assert.True(t, positiveAmount("0.001"))
	assert.False(t, positiveAmount("0"))
	assert.False(t, positiveAmount("0.000"))
	assert.False(t, positiveAmount("-1"))
	assert.False(t, positiveAmount(""))
	assert.False(t, positiveAmount("abc"))
}
