package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/daiwatch/service/metrics"
	"github.com/brojonat/daiwatch/service/transfers"
)

// keepaliveInterval is how often an idle stream gets a comment line.
var keepaliveInterval = 10 * time.Second

// subscriberBuffer is the number of feed events queued per SSE client before
// events are dropped for it.
const subscriberBuffer = 64

// handleStreamTransfers handles SSE streaming of live feed changes.
// GET /api/v1/stream/transfers?sender={substr}&recipient={substr}
// Every accepted live transfer matching the filter is sent as a "transfer"
// event; transfers retracted by a reorg are sent as "removed" events.
// The stream ends when the client disconnects or shutdown is closed.
func handleStreamTransfers(feed *transfers.Feed, explorerTxURL string, shutdown <-chan struct{}, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		events, cancel := feed.Subscribe(subscriberBuffer)
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		m.RecordSSEConnectionChange(1)
		defer m.RecordSSEConnectionChange(-1)

		logger.DebugContext(r.Context(), "SSE client connected",
			"sender_filter", filter.Sender,
			"recipient_filter", filter.Recipient,
			"remote_addr", r.RemoteAddr,
		)

		connected, _ := json.Marshal(map[string]interface{}{
			"loaded": feed.Loaded(),
			"count":  feed.Len(),
		})
		fmt.Fprintf(w, "event: connected\ndata: %s\n\n", connected)
		flusher.Flush()

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case ev, ok := <-events:
				if !ok {
					return
				}
				if !filter.Match(ev.Record) {
					continue
				}

				data, err := json.Marshal(toTransferJSON(ev.Record, explorerTxURL))
				if err != nil {
					logger.WarnContext(r.Context(), "failed to marshal event", "error", err)
					continue
				}

				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
				flusher.Flush()
				m.RecordSSEEventSent(string(ev.Type))

				logger.DebugContext(r.Context(), "sent transfer event",
					"event", ev.Type,
					"tx_hash", ev.Record.TxHash,
				)

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"remote_addr", r.RemoteAddr,
				)
				return

			case <-shutdown:
				return
			}
		}
	})
}
