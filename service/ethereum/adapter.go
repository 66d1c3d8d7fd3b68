package ethereum

import (
	"context"
	"fmt"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// realRPCClient adapts the go-ethereum ethclient to our RPCClient interface.
// This adapter allows us to control the interface and makes testing easier.
type realRPCClient struct {
	client *ethclient.Client
}

// NewRPCClient dials an Ethereum node. Hosted providers carry the API key in
// the URL:
// - Infura HTTP: https://mainnet.infura.io/v3/YOUR-KEY
// - Infura websocket: wss://mainnet.infura.io/ws/v3/YOUR-KEY
// Only websocket and IPC endpoints support log subscriptions.
func NewRPCClient(ctx context.Context, rpcURL string) (RPCClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ethereum node: %w", err)
	}
	return &realRPCClient{client: client}, nil
}

func (r *realRPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	return r.client.BlockNumber(ctx)
}

func (r *realRPCClient) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	return r.client.HeaderByHash(ctx, hash)
}

func (r *realRPCClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return r.client.TransactionReceipt(ctx, txHash)
}

func (r *realRPCClient) FilterLogs(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
	return r.client.FilterLogs(ctx, q)
}

func (r *realRPCClient) SubscribeFilterLogs(ctx context.Context, q goethereum.FilterQuery, ch chan<- types.Log) (goethereum.Subscription, error) {
	return r.client.SubscribeFilterLogs(ctx, q, ch)
}

func (r *realRPCClient) Close() {
	r.client.Close()
}
