package solana

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// SelectRandomEndpoint picks one RPC endpoint at random, spreading
// load across the configured nodes.
func SelectRandomEndpoint(endpoints []string) (string, error) {
	if len(endpoints) == 0 {
		return "", fmt.Errorf("no RPC endpoints configured")
	}
	return endpoints[rand.Intn(len(endpoints))], nil
}

// realRPCClient adapts the solana-go RPC client to our RPCClient
// interface so tests can swap in a fake.
type realRPCClient struct {
	client *rpc.Client
}

// NewRPCClient creates an RPCClient backed by a real Solana node.
// Premium endpoints carry their API key in the URL, e.g.
// https://solana-mainnet.g.alchemy.com/v2/YOUR-KEY.
func NewRPCClient(rpcURL string) RPCClient {
	return &realRPCClient{
		client: rpc.New(rpcURL),
	}
}

func (r *realRPCClient) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	return r.client.GetSignaturesForAddressWithOpts(ctx, address, opts)
}

func (r *realRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	return r.client.GetTransaction(ctx, signature, opts)
}
