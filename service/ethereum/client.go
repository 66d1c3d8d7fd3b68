package ethereum

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"

	"github.com/brojonat/daiwatch/service/metrics"
	"github.com/brojonat/daiwatch/service/transfers"
)

// ClientConfig tunes how the client talks to the node.
type ClientConfig struct {
	// Concurrency bounds parallel receipt and header lookups during a backfill.
	Concurrency int
	// PollInterval is used for live updates when the transport has no subscriptions.
	PollInterval time.Duration
	// HeaderCacheSize is the number of block headers kept for timestamp lookups.
	HeaderCacheSize int
}

// Client provides methods for reading DAI transfers from an Ethereum node.
// It wraps the RPC client with domain-specific operations.
type Client struct {
	rpc      RPCClient
	live     RPCClient // used for subscriptions; may be the same as rpc
	contract *TokenContract
	headers  *lru.Cache
	cfg      ClientConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewClient creates a new Ethereum client. The live client is used for log
// subscriptions; pass nil to use rpcClient for everything.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient, live RPCClient, contract *TokenContract, cfg ClientConfig, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 12 * time.Second
	}
	if cfg.HeaderCacheSize <= 0 {
		cfg.HeaderCacheSize = 256
	}
	headers, err := lru.New(cfg.HeaderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create header cache: %w", err)
	}
	if live == nil {
		live = rpcClient
	}
	return &Client{
		rpc:      rpcClient,
		live:     live,
		contract: contract,
		headers:  headers,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}, nil
}

// Contract returns the token contract the client reads from.
func (c *Client) Contract() *TokenContract {
	return c.contract
}

// FetchRecentTransfers queries Transfer logs for the last window blocks and
// expands each one into every DAI Transfer log of its transaction receipt,
// timestamped with the block time. A transaction with several transfers is
// therefore reported several times; callers merge by (log index, tx hash).
// Records are returned in chain order.
func (c *Client) FetchRecentTransfers(ctx context.Context, window uint64) ([]transfers.Record, error) {
	head, err := c.blockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get head block: %w", err)
	}

	var from uint64
	if head > window {
		from = head - window
	}

	logs, err := c.filterLogs(ctx, c.contract.FilterQuery(new(big.Int).SetUint64(from), new(big.Int).SetUint64(head)))
	if err != nil {
		return nil, fmt.Errorf("failed to query transfer logs: %w", err)
	}

	c.logger.DebugContext(ctx, "fetched transfer logs",
		"from_block", from,
		"to_block", head,
		"count", len(logs),
	)

	// Look up each transaction once; a receipt may back several logs.
	txOrder := make([]common.Hash, 0, len(logs))
	seen := make(map[common.Hash]struct{}, len(logs))
	for _, l := range logs {
		if _, ok := seen[l.TxHash]; ok {
			continue
		}
		seen[l.TxHash] = struct{}{}
		txOrder = append(txOrder, l.TxHash)
	}

	type txDetails struct {
		receipt *types.Receipt
		time    time.Time
	}
	details := make([]txDetails, len(txOrder))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, txHash := range txOrder {
		g.Go(func() error {
			receipt, err := c.receipt(gctx, txHash)
			if err != nil {
				return fmt.Errorf("failed to get receipt for %s: %w", txHash.Hex(), err)
			}
			header, err := c.header(gctx, receipt.BlockHash)
			if err != nil {
				return fmt.Errorf("failed to get block %s: %w", receipt.BlockHash.Hex(), err)
			}
			details[i] = txDetails{receipt: receipt, time: blockTime(header)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byTx := make(map[common.Hash]txDetails, len(txOrder))
	for i, txHash := range txOrder {
		byTx[txHash] = details[i]
	}

	records := make([]transfers.Record, 0, len(logs))
	for _, l := range logs {
		d := byTx[l.TxHash]
		for _, rl := range d.receipt.Logs {
			if !c.contract.IsTransferLog(rl) {
				continue
			}
			rec, err := c.toRecord(rl, d.time, transfers.SourceHistorical)
			if err != nil {
				c.logger.WarnContext(ctx, "skipping undecodable transfer log",
					"tx_hash", rl.TxHash.Hex(),
					"log_index", rl.Index,
					"error", err,
				)
				c.metrics.RecordDecodeError()
				continue
			}
			records = append(records, rec)
		}
	}

	c.metrics.RecordTransfersObserved(string(transfers.SourceHistorical), len(records))
	c.logger.InfoContext(ctx, "fetched recent transfers",
		"from_block", from,
		"to_block", head,
		"logs", len(logs),
		"transactions", len(txOrder),
		"records", len(records),
	)

	return records, nil
}

// toRecord decodes a Transfer log into a feed record.
func (c *Client) toRecord(l *types.Log, ts time.Time, source transfers.Source) (transfers.Record, error) {
	t, err := c.contract.DecodeTransfer(l)
	if err != nil {
		return transfers.Record{}, err
	}
	return transfers.Record{
		TxHash:      l.TxHash.Hex(),
		LogIndex:    l.Index,
		BlockNumber: l.BlockNumber,
		Timestamp:   ts,
		Sender:      t.From.Hex(),
		Recipient:   t.To.Hex(),
		Value:       transfers.ToDecimal(t.Amount, transfers.DAIDecimals),
		Source:      source,
	}, nil
}

// header returns a block header, served from the LRU cache when possible.
func (c *Client) header(ctx context.Context, hash common.Hash) (*types.Header, error) {
	if v, ok := c.headers.Get(hash); ok {
		c.metrics.RecordHeaderCacheLookup(true)
		return v.(*types.Header), nil
	}
	c.metrics.RecordHeaderCacheLookup(false)

	start := time.Now()
	h, err := c.rpc.HeaderByHash(ctx, hash)
	c.metrics.RecordRPCCall("eth_getBlockByHash", err, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, goethereum.NotFound
	}
	c.headers.Add(hash, h)
	return h, nil
}

func (c *Client) receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	start := time.Now()
	r, err := c.rpc.TransactionReceipt(ctx, txHash)
	c.metrics.RecordRPCCall("eth_getTransactionReceipt", err, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, goethereum.NotFound
	}
	return r, nil
}

func (c *Client) blockNumber(ctx context.Context) (uint64, error) {
	start := time.Now()
	n, err := c.rpc.BlockNumber(ctx)
	c.metrics.RecordRPCCall("eth_blockNumber", err, time.Since(start).Seconds())
	return n, err
}

func (c *Client) filterLogs(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
	start := time.Now()
	logs, err := c.rpc.FilterLogs(ctx, q)
	c.metrics.RecordRPCCall("eth_getLogs", err, time.Since(start).Seconds())
	if err == nil {
		c.metrics.RecordLogsPerQuery(len(logs))
	}
	return logs, err
}

func blockTime(h *types.Header) time.Time {
	return time.Unix(int64(h.Time), 0).UTC()
}
