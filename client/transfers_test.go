package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listBody = `{
	"loading": false,
	"count": 1,
	"max_size": 100,
	"transfers": [{
		"tx_hash": "0xabc",
		"log_index": 3,
		"block_number": 14000000,
		"timestamp": "2022-03-03T14:05:09Z",
		"timestamp_display": "March 3rd 2022, 2:05:09 pm",
		"sender": "0x28C6c06298d514Db089934071355E5743bf21d60",
		"recipient": "0xA9D1e08C7793af67e9d92fe308d5697FB81d3E43",
		"value": "1234.000000000000000001",
		"source": "historical",
		"explorer_url": "https://etherscan.io/tx/0xabc"
	}]
}`

func TestListTransfers_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/transfers", r.URL.Path)
		assert.Equal(t, "0x28c6", r.URL.Query().Get("sender"))
		assert.Equal(t, "value", r.URL.Query().Get("sort"))
		assert.Equal(t, "asc", r.URL.Query().Get("order"))
		assert.False(t, r.URL.Query().Has("recipient"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(listBody))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	list, err := client.ListTransfers(context.Background(), ListParams{
		Sender: "0x28c6",
		Sort:   "value",
		Order:  "asc",
	})
	require.NoError(t, err)

	assert.False(t, list.Loading)
	require.Len(t, list.Transfers, 1)
	tr := list.Transfers[0]
	assert.Equal(t, "0xabc", tr.TxHash)
	assert.Equal(t, uint(3), tr.LogIndex)
	assert.Equal(t, "1234.000000000000000001", tr.Value.String())
	assert.Equal(t, 2022, tr.Timestamp.Year())
}

func TestListTransfers_NoParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		w.Write([]byte(`{"loading": true, "count": 0, "max_size": 100, "transfers": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	list, err := client.ListTransfers(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.True(t, list.Loading)
	assert.Empty(t, list.Transfers)
}

func TestListTransfers_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "invalid sort field \"sender\"",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.ListTransfers(context.Background(), ListParams{Sort: "sender"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sort field")
}

func TestListTransfers_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.ListTransfers(context.Background(), ListParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte(`{"status": "ok", "loaded": true, "transfers": 100, "subscribers": 2}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	h, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.True(t, h.Loaded)
	assert.Equal(t, 100, h.Transfers)
	assert.Equal(t, 2, h.Subscribers)
}
