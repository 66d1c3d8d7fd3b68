package db

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/daiwatch/service/transfers"
)

func record(tx string, index uint, ts time.Time, sender, recipient, value string) transfers.Record {
	return transfers.Record{
		TxHash:      tx,
		LogIndex:    index,
		BlockNumber: 14_000_000,
		Timestamp:   ts,
		Sender:      sender,
		Recipient:   recipient,
		Value:       decimal.RequireFromString(value),
		Source:      transfers.SourceHistorical,
	}
}

func TestSaveTransfers(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	records := []transfers.Record{
		record("0xaaa", 0, now, "0xSender1", "0xRecipient1", "1.5"),
		record("0xaaa", 1, now, "0xSender2", "0xRecipient2", "0.000000000000000001"),
	}

	t.Run("inserts new records", func(t *testing.T) {
		n, err := store.SaveTransfers(ctx, records)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("ignores archived records", func(t *testing.T) {
		n, err := store.SaveTransfers(ctx, records)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		count, err := store.CountTransfers(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("empty batch", func(t *testing.T) {
		n, err := store.SaveTransfers(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestListRecentTransfers(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	base := time.Date(2022, 3, 3, 14, 0, 0, 0, time.UTC)

	_, err := store.SaveTransfers(ctx, []transfers.Record{
		record("0x01", 0, base, "0xAlice", "0xBob", "10"),
		record("0x02", 0, base.Add(time.Minute), "0xCarol", "0xBob", "1234.000000000000000001"),
		record("0x03", 0, base.Add(2*time.Minute), "0xAlice", "0xDave", "3"),
	})
	require.NoError(t, err)

	t.Run("newest first", func(t *testing.T) {
		got, err := store.ListRecentTransfers(ctx, ListParams{Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "0x03", got[0].TxHash)
		assert.Equal(t, "0x01", got[2].TxHash)
		assert.True(t, base.Equal(got[2].Timestamp))
	})

	t.Run("exact values", func(t *testing.T) {
		got, err := store.ListRecentTransfers(ctx, ListParams{Recipient: "Bob", Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "1234.000000000000000001", got[0].Value.String())
	})

	t.Run("case-sensitive sender filter", func(t *testing.T) {
		got, err := store.ListRecentTransfers(ctx, ListParams{Sender: "Alice", Limit: 10})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = store.ListRecentTransfers(ctx, ListParams{Sender: "ALICE", Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("pagination", func(t *testing.T) {
		got, err := store.ListRecentTransfers(ctx, ListParams{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "0x02", got[0].TxHash)
	})
}
