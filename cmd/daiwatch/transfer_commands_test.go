package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func testRows() []transferRow {
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return []transferRow{
		{
			TxHash:    "0xaaa",
			LogIndex:  1,
			Timestamp: ts,
			Sender:    "0x28C6c06298d514Db089934071355E5743bf21d60",
			Recipient: "0xdAC17F958D2ee523a2206206994597C13D831ec7",
			Value:     "15000",
			Source:    "historical",
		},
		{
			TxHash:    "0xbbb",
			LogIndex:  0,
			Timestamp: ts.Add(time.Minute),
			Sender:    "0x0000000000000000000000000000000000000001",
			Recipient: "0x28C6c06298d514Db089934071355E5743bf21d60",
			Value:     "2.5",
			Source:    "live",
		},
	}
}

func TestJQFilterMatching(t *testing.T) {
	tests := []struct {
		name    string
		filters []string
		wantTxs []string
		wantErr bool
	}{
		{
			name:    "no filters keeps everything",
			filters: nil,
			wantTxs: []string{"0xaaa", "0xbbb"},
		},
		{
			name:    "value threshold",
			filters: []string{`.value | tonumber > 1000`},
			wantTxs: []string{"0xaaa"},
		},
		{
			name:    "source equality",
			filters: []string{`.source == "live"`},
			wantTxs: []string{"0xbbb"},
		},
		{
			name:    "all filters must match",
			filters: []string{`.log_index == 1`, `.source == "live"`},
			wantTxs: []string{},
		},
		{
			name:    "case-insensitive sender match",
			filters: []string{`.sender | ascii_downcase | startswith("0x28c6")`},
			wantTxs: []string{"0xaaa"},
		},
		{
			name:    "null result does not match",
			filters: []string{`.memo`},
			wantTxs: []string{},
		},
		{
			name:    "runtime error does not match",
			filters: []string{`.value | tonumber | ascii_downcase`},
			wantTxs: []string{},
		},
		{
			name:    "parse error",
			filters: []string{`.value >`},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, err := compileJQFilters(tt.filters)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			rows, err := filterRows(testRows(), codes)
			require.NoError(t, err)

			got := make([]string, 0, len(rows))
			for _, r := range rows {
				got = append(got, r.TxHash)
			}
			assert.Equal(t, tt.wantTxs, got)
		})
	}
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0))
	assert.True(t, isTruthy(""))
	assert.True(t, isTruthy([]interface{}{}))
}

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		"event: connected",
		`data: {"loaded":true,"count":3}`,
		"",
		": keepalive",
		"",
		"event: transfer",
		`data: {"tx_hash":"0xaaa"}`,
		"",
		"event: removed",
		`data: {"tx_hash":"0xaaa"}`,
		"",
	}, "\n")

	var events []string
	err := readSSE(strings.NewReader(stream), func(event, data string) {
		events = append(events, event+" "+data)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		`connected {"loaded":true,"count":3}`,
		`transfer {"tx_hash":"0xaaa"}`,
		`removed {"tx_hash":"0xaaa"}`,
	}, events)
}

func TestListTransfersCommand(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transfers", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"loading":false,"count":1,"max_size":100,"transfers":[
			{"tx_hash":"0xaaa","log_index":1,"timestamp":"2026-05-01T12:00:00Z","sender":"0x1","recipient":"0x2","value":"15000","source":"live"}
		]}`))
	}))
	defer server.Close()

	os.Setenv("SERVER_URL", server.URL)
	defer os.Unsetenv("SERVER_URL")

	app := &cli.App{
		Name:     "daiwatch",
		Commands: []*cli.Command{transferCommands()},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				EnvVars: []string{"SERVER_URL"},
			},
			&cli.BoolFlag{
				Name: "json",
			},
		},
	}

	err := app.Run([]string{"daiwatch", "transfers", "list", "--sender", "0x1", "--sort", "value", "--jq", ".source == \"live\""})
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "sender=0x1")
	assert.Contains(t, gotQuery, "sort=value")

	err = app.Run([]string{"daiwatch", "transfers", "list", "--jq", ".value >"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
}
