package transfers

import (
	"fmt"
	"slices"
	"strings"
)

// SortField selects the comparator used to order records.
type SortField string

const (
	SortByTimestampField SortField = "timestamp"
	SortByValueField     SortField = "value"
)

// ParseSortField validates a user supplied sort field. Empty means timestamp.
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "timestamp", "time":
		return SortByTimestampField, nil
	case "value", "amount":
		return SortByValueField, nil
	default:
		return "", fmt.Errorf("invalid sort field %q: must be 'timestamp' or 'value'", s)
	}
}

// ParseDirection converts "asc"/"desc" (or "1"/"-1") into a direction.
// Empty means descending, newest or largest first.
func ParseDirection(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "1", "+1":
		return 1, nil
	case "", "desc", "-1":
		return -1, nil
	default:
		return 0, fmt.Errorf("invalid sort order %q: must be 'asc' or 'desc'", s)
	}
}

// SortByTimestamp sorts records in place. A non-negative direction sorts
// ascending, a negative one descending. Equal timestamps keep their
// relative order.
func SortByTimestamp(records []Record, direction int) {
	slices.SortStableFunc(records, func(a, b Record) int {
		return signed(a.Timestamp.Compare(b.Timestamp), direction)
	})
}

// SortByValue sorts records in place by numeric token amount.
func SortByValue(records []Record, direction int) {
	slices.SortStableFunc(records, func(a, b Record) int {
		return signed(a.Value.Cmp(b.Value), direction)
	})
}

// Sort dispatches to the comparator for field.
func Sort(records []Record, field SortField, direction int) {
	switch field {
	case SortByValueField:
		SortByValue(records, direction)
	default:
		SortByTimestamp(records, direction)
	}
}

// newestFirst orders by timestamp, then block and log position, all descending.
func newestFirst(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		if a.BlockNumber != b.BlockNumber {
			if b.BlockNumber > a.BlockNumber {
				return 1
			}
			return -1
		}
		return int(b.LogIndex) - int(a.LogIndex)
	})
}

func signed(c, direction int) int {
	if direction < 0 {
		return -c
	}
	return c
}
