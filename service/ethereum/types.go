package ethereum

import (
	"context"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RPCClient is an interface for the Ethereum JSON-RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real nodes.
type RPCClient interface {
	BlockNumber(ctx context.Context) (uint64, error)

	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)

	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	FilterLogs(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error)

	// SubscribeFilterLogs streams matching logs. Transports without
	// notification support (plain HTTP) return rpc.ErrNotificationsUnsupported.
	SubscribeFilterLogs(ctx context.Context, q goethereum.FilterQuery, ch chan<- types.Log) (goethereum.Subscription, error)

	Close()
}
