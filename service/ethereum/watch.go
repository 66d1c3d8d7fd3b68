package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/brojonat/daiwatch/service/transfers"
)

// Subscription modes, as reported in metrics and logs.
const (
	ModeSubscribe = "subscribe"
	ModePoll      = "poll"
)

// WatchTransfers streams new Transfer events until ctx is cancelled or the
// subscription fails. Each decoded transfer is passed to onTransfer with
// Source=live; logs retracted by a chain reorganization are passed to
// onRemoved. Both callbacks run on the watcher goroutine.
//
// When the live transport cannot push notifications the client polls for
// new logs every PollInterval instead.
//
// It returns nil when ctx is cancelled.
func (c *Client) WatchTransfers(ctx context.Context, onTransfer func(transfers.Record), onRemoved func(transfers.Key)) error {
	logs := make(chan types.Log, 128)

	sub, mode, err := c.subscribe(ctx, logs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	c.metrics.RecordSubscription(mode)
	c.logger.InfoContext(ctx, "watching transfers",
		"contract", c.contract.Address().Hex(),
		"mode", mode,
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-sub.Err():
			if !ok || err == nil {
				return nil
			}
			return fmt.Errorf("transfer subscription failed: %w", err)
		case l := <-logs:
			c.handleLiveLog(ctx, &l, onTransfer, onRemoved)
		}
	}
}

func (c *Client) subscribe(ctx context.Context, logs chan types.Log) (goethereum.Subscription, string, error) {
	start := time.Now()
	sub, err := c.live.SubscribeFilterLogs(ctx, c.contract.FilterQuery(nil, nil), logs)
	c.metrics.RecordRPCCall("eth_subscribe", err, time.Since(start).Seconds())
	if err == nil {
		return sub, ModeSubscribe, nil
	}
	if !errors.Is(err, rpc.ErrNotificationsUnsupported) {
		return nil, "", fmt.Errorf("failed to subscribe to transfer logs: %w", err)
	}

	c.logger.InfoContext(ctx, "transport has no subscriptions, falling back to polling",
		"interval", c.cfg.PollInterval,
	)

	head, err := c.blockNumber(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get head block: %w", err)
	}
	sub = event.NewSubscription(func(quit <-chan struct{}) error {
		return c.poll(ctx, quit, head, logs)
	})
	return sub, ModePoll, nil
}

// poll queries logs for the blocks mined since last on every tick and
// forwards them in chain order.
func (c *Client) poll(ctx context.Context, quit <-chan struct{}, last uint64, logs chan<- types.Log) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		head, err := c.blockNumber(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.WarnContext(ctx, "failed to poll head block", "error", err)
			continue
		}
		if head <= last {
			continue
		}

		found, err := c.filterLogs(ctx, c.contract.FilterQuery(
			new(big.Int).SetUint64(last+1),
			new(big.Int).SetUint64(head),
		))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.WarnContext(ctx, "failed to poll transfer logs",
				"from_block", last+1,
				"to_block", head,
				"error", err,
			)
			continue
		}
		last = head

		for _, l := range found {
			select {
			case logs <- l:
			case <-quit:
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (c *Client) handleLiveLog(ctx context.Context, l *types.Log, onTransfer func(transfers.Record), onRemoved func(transfers.Key)) {
	if l.Removed {
		c.logger.InfoContext(ctx, "transfer removed by reorg",
			"tx_hash", l.TxHash.Hex(),
			"log_index", l.Index,
			"block_number", l.BlockNumber,
		)
		if onRemoved != nil {
			onRemoved(transfers.Key{TxHash: l.TxHash.Hex(), LogIndex: l.Index})
		}
		return
	}

	ts := c.now().UTC()
	if h, err := c.header(ctx, l.BlockHash); err == nil {
		ts = blockTime(h)
	} else {
		c.logger.DebugContext(ctx, "using wall clock for live transfer",
			"block_hash", l.BlockHash.Hex(),
			"error", err,
		)
	}

	rec, err := c.toRecord(l, ts, transfers.SourceLive)
	if err != nil {
		c.logger.WarnContext(ctx, "skipping undecodable transfer log",
			"tx_hash", l.TxHash.Hex(),
			"log_index", l.Index,
			"error", err,
		)
		c.metrics.RecordDecodeError()
		return
	}

	c.metrics.RecordTransfersObserved(string(transfers.SourceLive), 1)
	if onTransfer != nil {
		onTransfer(rec)
	}
}
