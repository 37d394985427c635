// Package solana fetches wallet history from a Solana RPC node and
// normalizes it into chain-agnostic ledger rows, so Solana wallets sit
// next to EVM wallets in the same ledger.
package solana

import (
	"context"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/ratelimit"

	"github.com/veritax/veritax/service/ledger"
	"github.com/veritax/veritax/service/metrics"
)

// ChainID is the SLIP-44 coin type for Solana, used as the chain
// identifier on ledger rows since Solana has no EVM-style chain id.
const ChainID uint64 = 501

const (
	defaultSignatureLimit    = 100
	defaultRequestsPerSecond = 2
	rpcMaxAttempts           = 3
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real
// Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)
}

// Client fetches and normalizes Solana wallet history.
type Client struct {
	rpc      RPCClient
	limiter  ratelimit.Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics labels
}

// NewClient creates a new Solana client. The endpoint parameter labels
// metrics (e.g. "mainnet" or the RPC hostname). metrics may be nil.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:      rpcClient,
		limiter:  ratelimit.New(defaultRequestsPerSecond),
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// GetLedgerRows fetches recent transfers touching the wallet and
// returns them as normalized ledger rows sorted by block time. Failed
// transactions and transfers that never moved value are dropped. Rows
// carry CategoryUnknown; categorization happens downstream.
func (c *Client) GetLedgerRows(ctx context.Context, wallet string, limit int) ([]ledger.LedgerRow, error) {
	pubkey, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSignatureLimit
	}

	transfers, err := c.fetchTransfers(ctx, pubkey, limit)
	if err != nil {
		return nil, err
	}

	rows := make([]ledger.LedgerRow, 0, len(transfers))
	dropped := 0
	for _, t := range transfers {
		if row, ok := normalizeTransfer(t, wallet); ok {
			rows = append(rows, row)
		} else {
			dropped++
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].BlockTime < rows[j].BlockTime
	})

	if c.metrics != nil {
		c.metrics.RecordTransfersFetched("solana", "all", len(transfers))
		if dropped > 0 {
			c.metrics.RecordTransfersDropped("solana", "failed_or_zero", dropped)
		}
	}

	c.logger.DebugContext(ctx, "fetched solana ledger rows",
		"wallet", wallet,
		"transfers", len(transfers),
		"rows", len(rows),
		"dropped", dropped,
	)
	return rows, nil
}

// fetchTransfers pulls the signature list and resolves each signature
// to a parsed transfer. Signatures whose transactions cannot be fetched
// or parsed degrade to metadata-only transfers rather than failing the
// whole batch.
func (c *Client) fetchTransfers(ctx context.Context, wallet solana.PublicKey, limit int) ([]*Transfer, error) {
	c.limiter.Take()

	start := time.Now()
	signatures, err := c.rpc.GetSignaturesForAddress(ctx, wallet, &rpc.GetSignaturesForAddressOpts{
		Limit: &limit,
	})
	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordRPCCall("solana", "GetSignaturesForAddress", status, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	transfers := make([]*Transfer, 0, len(signatures))
	for _, sig := range signatures {
		result, err := c.getTransactionWithRetry(ctx, sig.Signature)
		if err != nil {
			c.logger.WarnContext(ctx, "failed to get transaction details, using metadata only",
				"signature", sig.Signature.String(),
				"error", err,
			)
			transfers = append(transfers, signatureToTransfer(sig))
			continue
		}

		t, err := parseTransferFromResult(sig, result)
		if err != nil {
			c.logger.WarnContext(ctx, "failed to parse transaction, using metadata only",
				"signature", sig.Signature.String(),
				"error", err,
			)
			transfers = append(transfers, signatureToTransfer(sig))
			continue
		}
		transfers = append(transfers, t)
	}

	return transfers, nil
}

// getTransactionWithRetry fetches one transaction, backing off on rate
// limits and transient errors.
func (c *Client) getTransactionWithRetry(ctx context.Context, signature solana.Signature) (*rpc.GetTransactionResult, error) {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	var result *rpc.GetTransactionResult
	var err error
	for attempt := 0; attempt < rpcMaxAttempts; attempt++ {
		c.limiter.Take()

		start := time.Now()
		result, err = c.rpc.GetTransaction(ctx, signature, opts)
		if c.metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			c.metrics.RecordRPCCall("solana", "GetTransaction", status, time.Since(start).Seconds())
		}
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		if strings.Contains(err.Error(), "429") {
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit("solana")
			}
			backoff *= 2
		}
		c.logger.WarnContext(ctx, "transaction fetch failed, retrying",
			"signature", signature.String(),
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err,
		)
		time.Sleep(backoff)
	}
	return nil, err
}

// normalizeTransfer converts a parsed transfer into a chain-agnostic
// ledger row. Failed transactions and zero amounts are skipped.
func normalizeTransfer(t *Transfer, ownerWallet string) (ledger.LedgerRow, bool) {
	if t.Failed() || t.Amount == 0 {
		return ledger.LedgerRow{}, false
	}

	asset := "SOL"
	decimals := t.Decimals
	if t.TokenMint != nil {
		asset = *t.TokenMint
	}

	direction := ledger.DirectionIn
	var counterparty *string
	if t.FromAddress != nil && *t.FromAddress == ownerWallet {
		direction = ledger.DirectionOut
		counterparty = t.ToAddress
	} else {
		counterparty = t.FromAddress
	}

	var blockTime uint64
	if !t.BlockTime.IsZero() && t.BlockTime.Unix() > 0 {
		blockTime = uint64(t.BlockTime.Unix())
	}

	return ledger.LedgerRow{
		ChainID:      ChainID,
		OwnerWallet:  ownerWallet,
		TxHash:       t.Signature,
		BlockTime:    blockTime,
		Asset:        asset,
		Amount:       baseUnitsToDecimal(t.Amount, decimals),
		Decimals:     decimals,
		Direction:    direction,
		Counterparty: counterparty,
		Category:     ledger.CategoryUnknown,
		Confidence:   0,
	}, true
}

// baseUnitsToDecimal converts an integer base-unit amount to a
// human-unit decimal string, e.g. 1500000000 lamports to "1.5".
func baseUnitsToDecimal(amount uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals)).String()
}
