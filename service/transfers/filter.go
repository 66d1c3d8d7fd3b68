package transfers

import "strings"

// Filter holds the two free-text filters shown on the dashboard.
// An empty field matches every record.
type Filter struct {
	Sender    string
	Recipient string
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.Sender == "" && f.Recipient == ""
}

// Match reports whether r passes both substring filters. The match is
// case-sensitive and the filter text is used as given.
func (f Filter) Match(r Record) bool {
	return contains(r.Sender, f.Sender) && contains(r.Recipient, f.Recipient)
}

// Apply returns the records that pass the filter, in their current order.
func (f Filter) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

func contains(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(s, substr)
}
