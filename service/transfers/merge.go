package transfers

// Merge removes records that share a key, keeping the first occurrence.
// Input order is preserved. The second return value is the number of
// duplicates that were dropped.
func Merge(records []Record) ([]Record, int) {
	seen := make(map[Key]struct{}, len(records))
	unique := make([]Record, 0, len(records))
	for _, r := range records {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, r)
	}
	return unique, len(records) - len(unique)
}

// Latest returns the last n records in input order.
func Latest(records []Record, n int) []Record {
	if n < 0 {
		n = 0
	}
	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}
