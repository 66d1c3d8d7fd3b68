package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/daiwatch/service/transfers"
)

const maxFilterLength = 100 // addresses are 42 chars, give buffer

// transferJSON is the wire form of a feed record.
type transferJSON struct {
	TxHash           string    `json:"tx_hash"`
	LogIndex         uint      `json:"log_index"`
	BlockNumber      uint64    `json:"block_number"`
	Timestamp        time.Time `json:"timestamp"`
	TimestampDisplay string    `json:"timestamp_display"`
	Sender           string    `json:"sender"`
	Recipient        string    `json:"recipient"`
	Value            string    `json:"value"`
	Source           string    `json:"source"`
	ExplorerURL      string    `json:"explorer_url"`
}

// listTransfersResponse is returned by the list endpoint.
type listTransfersResponse struct {
	Loading   bool           `json:"loading"`
	Count     int            `json:"count"`
	MaxSize   int            `json:"max_size"`
	Transfers []transferJSON `json:"transfers"`
}

func toTransferJSON(r transfers.Record, explorerTxURL string) transferJSON {
	return transferJSON{
		TxHash:           r.TxHash,
		LogIndex:         r.LogIndex,
		BlockNumber:      r.BlockNumber,
		Timestamp:        r.Timestamp,
		TimestampDisplay: transfers.FormatTimestamp(r.Timestamp),
		Sender:           r.Sender,
		Recipient:        r.Recipient,
		Value:            transfers.FormatValue(r.Value),
		Source:           string(r.Source),
		ExplorerURL:      explorerTxURL + r.TxHash,
	}
}

func newListResponse(feed *transfers.Feed, records []transfers.Record, explorerTxURL string) listTransfersResponse {
	out := make([]transferJSON, 0, len(records))
	for _, r := range records {
		out = append(out, toTransferJSON(r, explorerTxURL))
	}
	return listTransfersResponse{
		Loading:   !feed.Loaded(),
		Count:     len(out),
		MaxSize:   feed.MaxSize(),
		Transfers: out,
	}
}

// handleListTransfers returns a handler that lists the feed.
// GET /api/v1/transfers?sender={substr}&recipient={substr}&sort=timestamp|value&order=asc|desc
// Without a sort parameter the feed's own order is kept. Sorting only shapes
// this response; the shared feed is never reordered.
func handleListTransfers(feed *transfers.Feed, explorerTxURL string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, err := parseQuery(r)
		if err != nil {
			logger.DebugContext(r.Context(), "invalid transfer query", "query", r.URL.RawQuery, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		records := feed.Query(q)
		writeJSON(w, newListResponse(feed, records, explorerTxURL), http.StatusOK)
	})
}

// parseQuery reads the filter and optional sort from the query string.
func parseQuery(r *http.Request) (transfers.Query, error) {
	values := r.URL.Query()

	filter, err := parseFilter(r)
	if err != nil {
		return transfers.Query{}, err
	}
	q := transfers.Query{Filter: filter}

	sortParam := values.Get("sort")
	orderParam := values.Get("order")
	if sortParam == "" && orderParam == "" {
		return q, nil
	}

	field, err := transfers.ParseSortField(sortParam)
	if err != nil {
		return transfers.Query{}, err
	}
	dir, err := transfers.ParseDirection(orderParam)
	if err != nil {
		return transfers.Query{}, err
	}
	q.SortField = field
	q.SortDir = dir
	return q, nil
}

func parseFilter(r *http.Request) (transfers.Filter, error) {
	values := r.URL.Query()
	f := transfers.Filter{
		Sender:    values.Get("sender"),
		Recipient: values.Get("recipient"),
	}
	if len(f.Sender) > maxFilterLength {
		return transfers.Filter{}, fmt.Errorf("sender filter too long: maximum length is %d characters", maxFilterLength)
	}
	if len(f.Recipient) > maxFilterLength {
		return transfers.Filter{}, fmt.Errorf("recipient filter too long: maximum length is %d characters", maxFilterLength)
	}
	return f, nil
}

// handleHealth reports liveness plus whether the backfill has completed.
// GET /health
func handleHealth(feed *transfers.Feed) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"status":      "ok",
			"loaded":      feed.Loaded(),
			"transfers":   feed.Len(),
			"subscribers": feed.Subscribers(),
		}, http.StatusOK)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
