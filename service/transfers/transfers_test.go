package transfers

import (
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2022, time.March, 3, 14, 5, 9, 0, time.UTC)

func rec(tx string, logIndex uint, offset time.Duration, value string) Record {
	return Record{
		TxHash:    tx,
		LogIndex:  logIndex,
		Timestamp: baseTime.Add(offset),
		Sender:    "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		Recipient: "0x28C6c06298d514Db089934071355E5743bf21d60",
		Value:     decimal.RequireFromString(value),
		Source:    SourceHistorical,
	}
}

func newTestFeed(max int) *Feed {
	return NewFeed(max, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMerge_DropsDuplicateKeys(t *testing.T) {
	records := []Record{
		rec("0xaaa", 1, 0, "1"),
		rec("0xaaa", 1, time.Minute, "99"), // same key, later copy
		rec("0xaaa", 2, 0, "2"),
		rec("0xbbb", 1, 0, "3"),
	}

	unique, dups := Merge(records)

	require.Len(t, unique, 3)
	assert.Equal(t, 1, dups)
	assert.Equal(t, "1", unique[0].Value.String(), "first occurrence wins")
	assert.Equal(t, Key{TxHash: "0xaaa", LogIndex: 2}, unique[1].Key())
	assert.Equal(t, Key{TxHash: "0xbbb", LogIndex: 1}, unique[2].Key())
}

func TestMerge_SameLogIndexDifferentTx(t *testing.T) {
	unique, dups := Merge([]Record{rec("0xaaa", 7, 0, "1"), rec("0xbbb", 7, 0, "1")})
	assert.Len(t, unique, 2)
	assert.Zero(t, dups)
}

func TestLatest(t *testing.T) {
	records := []Record{rec("0x1", 0, 0, "1"), rec("0x2", 0, 0, "1"), rec("0x3", 0, 0, "1")}

	assert.Len(t, Latest(records, 5), 3)
	got := Latest(records, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "0x2", got[0].TxHash)
	assert.Equal(t, "0x3", got[1].TxHash)
	assert.Empty(t, Latest(records, -1))
}

func TestSortByTimestamp(t *testing.T) {
	records := []Record{
		rec("0x1", 0, 3*time.Second, "1"),
		rec("0x2", 0, 1*time.Second, "1"),
		rec("0x3", 0, 2*time.Second, "1"),
		rec("0x4", 0, 1*time.Second, "1"),
	}

	SortByTimestamp(records, 1)
	for i := 1; i < len(records); i++ {
		assert.False(t, records[i].Timestamp.Before(records[i-1].Timestamp), "ascending at %d", i)
	}
	assert.Equal(t, "0x2", records[0].TxHash, "stable for equal timestamps")
	assert.Equal(t, "0x4", records[1].TxHash)

	SortByTimestamp(records, -1)
	for i := 1; i < len(records); i++ {
		assert.False(t, records[i].Timestamp.After(records[i-1].Timestamp), "descending at %d", i)
	}
}

func TestSortByValue_NumericNotLexical(t *testing.T) {
	records := []Record{
		rec("0x1", 0, 0, "9.5"),
		rec("0x2", 0, 0, "10"),
		rec("0x3", 0, 0, "0.000000000000000001"),
		rec("0x4", 0, 0, "1000000.25"),
	}

	SortByValue(records, 1)
	got := make([]string, len(records))
	for i, r := range records {
		got[i] = r.TxHash
	}
	assert.Equal(t, []string{"0x3", "0x1", "0x2", "0x4"}, got)

	SortByValue(records, -1)
	for i := 1; i < len(records); i++ {
		assert.True(t, records[i].Value.LessThanOrEqual(records[i-1].Value))
	}
}

func TestParseSortParams(t *testing.T) {
	field, err := ParseSortField("")
	require.NoError(t, err)
	assert.Equal(t, SortByTimestampField, field)

	field, err = ParseSortField("VALUE")
	require.NoError(t, err)
	assert.Equal(t, SortByValueField, field)

	_, err = ParseSortField("sender")
	assert.Error(t, err)

	dir, err := ParseDirection("asc")
	require.NoError(t, err)
	assert.Equal(t, 1, dir)

	dir, err = ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, -1, dir)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestFilter_Match(t *testing.T) {
	r := Record{
		Sender:    "0xAbC0000000000000000000000000000000000001",
		Recipient: "0xDef0000000000000000000000000000000000002",
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"sender substring", Filter{Sender: "AbC"}, true},
		{"recipient substring", Filter{Recipient: "0002"}, true},
		{"both match", Filter{Sender: "0xAbC", Recipient: "Def"}, true},
		{"sender mismatch", Filter{Sender: "fff"}, false},
		{"recipient mismatch", Filter{Sender: "AbC", Recipient: "AbC"}, false},
		{"sender case differs", Filter{Sender: "abc"}, false},
		{"recipient case differs", Filter{Recipient: "DEF"}, false},
		{"surrounding space is not trimmed", Filter{Sender: " 0xAbC"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(r))
		})
	}
}

func TestFilter_CaseSensitive(t *testing.T) {
	r := Record{Sender: "0xAbCdEf0000000000000000000000000000000001"}

	assert.False(t, Filter{Sender: "abcdef"}.Match(r))
	assert.True(t, Filter{Sender: "AbCdEf"}.Match(r))
	assert.Empty(t, Filter{Sender: "abcdef"}.Apply([]Record{r}))
}

func TestFeed_ReplaceMergesAndBounds(t *testing.T) {
	feed := newTestFeed(3)
	assert.False(t, feed.Loaded())

	dups := feed.Replace([]Record{
		rec("0x1", 0, 1*time.Second, "1"),
		rec("0x1", 0, 1*time.Second, "1"),
		rec("0x2", 0, 2*time.Second, "1"),
		rec("0x3", 0, 3*time.Second, "1"),
		rec("0x4", 0, 4*time.Second, "1"),
	})

	assert.Equal(t, 1, dups)
	assert.True(t, feed.Loaded())
	got := feed.Snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, "0x4", got[0].TxHash, "newest first")
	assert.Equal(t, "0x2", got[2].TxHash, "oldest of the kept tail")
}

func TestFeed_PrependBoundsAndDedups(t *testing.T) {
	feed := newTestFeed(DefaultMaxSize)
	feed.Replace(nil)

	for i := 0; i < 250; i++ {
		r := rec(fmt.Sprintf("0x%03d", i), 0, time.Duration(i)*time.Second, "1")
		r.Source = SourceLive
		assert.True(t, feed.Prepend(r))
		assert.LessOrEqual(t, feed.Len(), DefaultMaxSize)
	}

	got := feed.Snapshot()
	assert.Equal(t, "0x249", got[0].TxHash)
	assert.Equal(t, "0x150", got[len(got)-1].TxHash)

	assert.False(t, feed.Prepend(rec("0x249", 0, 0, "5")), "duplicate event identity is ignored")
	assert.Equal(t, DefaultMaxSize, feed.Len())
}

func TestFeed_EvictedRecordIsNotReaccepted(t *testing.T) {
	feed := newTestFeed(2)
	feed.Replace(nil)

	require.True(t, feed.Prepend(rec("0xa", 0, 1*time.Second, "1")))
	require.True(t, feed.Prepend(rec("0xb", 0, 2*time.Second, "1")))
	require.True(t, feed.Prepend(rec("0xc", 0, 3*time.Second, "1")))

	// 0xa aged off the tail; a replay of it must not jump back on top.
	assert.False(t, feed.Prepend(rec("0xa", 0, 1*time.Second, "1")))
	assert.Equal(t, "0xc", feed.Snapshot()[0].TxHash)
	assert.Equal(t, 2, feed.Len())

	// The memory of evicted keys is bounded by the feed size.
	require.True(t, feed.Prepend(rec("0xd", 0, 4*time.Second, "1")))
	require.True(t, feed.Prepend(rec("0xe", 0, 5*time.Second, "1")))
	assert.True(t, feed.Prepend(rec("0xa", 0, 6*time.Second, "1")), "long-gone keys are forgotten")
}

func TestFeed_RemovedRecordCanReturn(t *testing.T) {
	feed := newTestFeed(10)
	feed.Replace(nil)

	r := rec("0xa", 0, time.Second, "1")
	require.True(t, feed.Prepend(r))
	require.True(t, feed.Remove(r.Key()))
	assert.True(t, feed.Prepend(r), "a log reorged back in is accepted again")
}

func TestFeed_RemoveAndSubscribe(t *testing.T) {
	feed := newTestFeed(10)
	events, cancel := feed.Subscribe(4)
	defer cancel()

	r := rec("0xabc", 3, 0, "42")
	require.True(t, feed.Prepend(r))
	require.True(t, feed.Remove(r.Key()))
	assert.False(t, feed.Remove(r.Key()))
	assert.Zero(t, feed.Len())

	ev := <-events
	assert.Equal(t, EventAdded, ev.Type)
	ev = <-events
	assert.Equal(t, EventRemoved, ev.Type)
	assert.Equal(t, r.Key(), ev.Record.Key())

	// Removed keys may be inserted again.
	assert.True(t, feed.Prepend(r))
}

func TestFeed_SlowSubscriberDoesNotBlock(t *testing.T) {
	feed := newTestFeed(10)
	_, cancel := feed.Subscribe(1)
	defer cancel()

	for i := 0; i < 5; i++ {
		feed.Prepend(rec(fmt.Sprintf("0x%d", i), 0, 0, "1"))
	}
	assert.Equal(t, 5, feed.Len())

	cancel()
	cancel() // idempotent
	assert.Zero(t, feed.Subscribers())
}

func TestFeed_QueryDoesNotReorder(t *testing.T) {
	feed := newTestFeed(10)
	feed.Replace([]Record{
		rec("0x1", 0, 1*time.Second, "5"),
		rec("0x2", 0, 2*time.Second, "1"),
		rec("0x3", 0, 3*time.Second, "3"),
	})

	view := feed.Query(Query{SortField: SortByValueField, SortDir: 1})
	assert.Equal(t, "0x2", view[0].TxHash)
	assert.Equal(t, "0x3", feed.Snapshot()[0].TxHash, "query leaves the stored order alone")

	view = feed.Query(Query{SortField: SortByTimestampField, SortDir: 1})
	assert.Equal(t, "0x1", view[0].TxHash)
	var stored []string
	for _, r := range feed.Snapshot() {
		stored = append(stored, r.TxHash)
	}
	assert.Equal(t, []string{"0x3", "0x2", "0x1"}, stored)
}

func TestFormatUnits(t *testing.T) {
	oneDAI := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	half := new(big.Int).Div(oneDAI, big.NewInt(2))
	big1234 := new(big.Int).Mul(oneDAI, big.NewInt(1234))
	big1234.Add(big1234, big.NewInt(5))

	assert.Equal(t, "1.0", FormatUnits(oneDAI, DAIDecimals))
	assert.Equal(t, "0.5", FormatUnits(half, DAIDecimals))
	assert.Equal(t, "0.0", FormatUnits(big.NewInt(0), DAIDecimals))
	assert.Equal(t, "1234.000000000000000005", FormatUnits(big1234, DAIDecimals))
	assert.Equal(t, "0.0", FormatUnits(nil, DAIDecimals))
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2022, time.March, 3, 14, 5, 9, 0, time.UTC), "March 3rd 2022, 2:05:09 pm"},
		{time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC), "January 1st 2022, 12:00:00 am"},
		{time.Date(2022, time.June, 12, 9, 30, 0, 0, time.UTC), "June 12th 2022, 9:30:00 am"},
		{time.Date(2022, time.May, 22, 23, 59, 59, 0, time.UTC), "May 22nd 2022, 11:59:59 pm"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimestamp(tt.in))
	}
}
