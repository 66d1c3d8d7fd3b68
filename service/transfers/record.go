package transfers

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies how a record entered the feed.
type Source string

const (
	SourceHistorical Source = "historical"
	SourceLive       Source = "live"
)

// Record is a single decoded DAI Transfer event.
// This is our domain model, independent of the RPC log format.
type Record struct {
	TxHash      string
	LogIndex    uint
	BlockNumber uint64
	Timestamp   time.Time
	Sender      string
	Recipient   string
	Value       decimal.Decimal
	Source      Source
}

// Key uniquely identifies a transfer log on chain.
type Key struct {
	TxHash   string
	LogIndex uint
}

func (k Key) String() string {
	return fmt.Sprintf("%d%s", k.LogIndex, k.TxHash)
}

// Key returns the (log index, transaction hash) identity of the record.
func (r Record) Key() Key {
	return Key{TxHash: r.TxHash, LogIndex: r.LogIndex}
}
