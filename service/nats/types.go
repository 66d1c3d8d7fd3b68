package nats

import (
	"time"

	"github.com/brojonat/daiwatch/service/transfers"
)

// TransferEvent represents a DAI transfer published to NATS.
// This is published to the subject "transfers.{contract_address}" in JetStream.
type TransferEvent struct {
	// Transfer identifiers
	TxHash      string `json:"tx_hash"`
	LogIndex    uint   `json:"log_index"`
	BlockNumber uint64 `json:"block_number"`

	Contract  string `json:"contract"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`

	// Value is the decimal token amount, kept as a string to avoid float rounding.
	Value  string `json:"value"`
	Source string `json:"source"`

	// Timing information
	BlockTime   time.Time `json:"block_time"`
	PublishedAt time.Time `json:"published_at"`
}

// FromRecord converts a feed record to a TransferEvent for publishing.
func FromRecord(contract string, r transfers.Record) *TransferEvent {
	return &TransferEvent{
		TxHash:      r.TxHash,
		LogIndex:    r.LogIndex,
		BlockNumber: r.BlockNumber,
		Contract:    contract,
		Sender:      r.Sender,
		Recipient:   r.Recipient,
		Value:       r.Value.String(),
		Source:      string(r.Source),
		BlockTime:   r.Timestamp,
		PublishedAt: time.Now().UTC(),
	}
}

// Subject returns the JetStream subject the event is published to.
func (e *TransferEvent) Subject() string {
	return SubjectPrefix + e.Contract
}
