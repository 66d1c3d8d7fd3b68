package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/daiwatch/client"
	"github.com/brojonat/daiwatch/service/config"
	"github.com/brojonat/daiwatch/service/ethereum"
	"github.com/brojonat/daiwatch/service/transfers"
)

func transferCommands() *cli.Command {
	return &cli.Command{
		Name:    "transfers",
		Aliases: []string{"tx"},
		Usage:   "List DAI transfers",
		Subcommands: []*cli.Command{
			listTransfersCommand(),
			fetchTransfersCommand(),
		},
	}
}

// viewFlags are shared by every command that prints a transfer list.
func viewFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "sender",
			Usage: "Only show transfers whose sender contains this text (case-sensitive)",
		},
		&cli.StringFlag{
			Name:  "recipient",
			Usage: "Only show transfers whose recipient contains this text (case-sensitive)",
		},
		&cli.StringFlag{
			Name:  "sort",
			Usage: "Sort by 'timestamp' or 'value'",
		},
		&cli.StringFlag{
			Name:  "order",
			Usage: "Sort order: 'asc' or 'desc' (default: desc)",
		},
		&cli.StringSliceFlag{
			Name:    "must-jq",
			Usage:   "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
			Aliases: []string{"jq"},
		},
	}
}

func listTransfersCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List the transfers the dashboard is showing",
		Description: `Fetches the dashboard's current transfer list from the server.

Examples:
  daiwatch transfers list --sort value --order desc
  daiwatch transfers list --sender 0x28c6 --json
  daiwatch transfers list --must-jq '.value | tonumber > 10000'`,
		Flags: viewFlags(),
		Action: func(c *cli.Context) error {
			codes, err := compileJQFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			cl := client.NewClient(c.String("server-url"), nil, cliLogger())
			list, err := cl.ListTransfers(c.Context, client.ListParams{
				Sender:    c.String("sender"),
				Recipient: c.String("recipient"),
				Sort:      c.String("sort"),
				Order:     c.String("order"),
			})
			if err != nil {
				return fmt.Errorf("failed to list transfers: %w", err)
			}

			if list.Loading {
				fmt.Fprintln(os.Stderr, "Loading events... (the server has not finished its historical fetch)")
			}

			rows := make([]transferRow, 0, len(list.Transfers))
			for _, t := range list.Transfers {
				rows = append(rows, transferRow{
					TxHash:    t.TxHash,
					LogIndex:  t.LogIndex,
					Timestamp: t.Timestamp,
					Sender:    t.Sender,
					Recipient: t.Recipient,
					Value:     transfers.FormatValue(t.Value),
					Source:    t.Source,
				})
			}

			rows, err = filterRows(rows, codes)
			if err != nil {
				return err
			}
			return printRows(rows, c.Bool("json"))
		},
	}
}

func fetchTransfersCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Fetch recent transfers directly from the Ethereum node",
		Description: `Runs the dashboard's historical query once against the node configured by
INFURA_ID or ETH_RPC_URL, merges duplicate records and prints the result.

Examples:
  daiwatch transfers fetch --blocks 20
  daiwatch transfers fetch --sort value --json`,
		Flags: append(viewFlags(),
			&cli.Uint64Flag{
				Name:    "blocks",
				Aliases: []string{"b"},
				Usage:   "Number of recent blocks to query (default: BLOCK_WINDOW)",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   2 * time.Minute,
				Usage:   "How long to wait for the node",
			},
		),
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			query, err := parseView(c)
			if err != nil {
				return err
			}
			codes, err := compileJQFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			window := cfg.BlockWindow
			if c.IsSet("blocks") {
				window = c.Uint64("blocks")
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			logger := cliLogger()
			rpcClient, err := ethereum.NewRPCClient(ctx, cfg.EthRPCURL)
			if err != nil {
				return err
			}
			defer rpcClient.Close()

			contract, err := ethereum.NewTokenContract(common.HexToAddress(cfg.DAIContractAddress))
			if err != nil {
				return err
			}
			ethClient, err := ethereum.NewClient(rpcClient, nil, contract, ethereum.ClientConfig{
				Concurrency:     cfg.RPCConcurrency,
				HeaderCacheSize: cfg.HeaderCacheSize,
			}, nil, logger)
			if err != nil {
				return err
			}

			records, err := ethClient.FetchRecentTransfers(ctx, window)
			if err != nil {
				return fmt.Errorf("failed to fetch transfers: %w", err)
			}

			feed := transfers.NewFeed(cfg.MaxTransfers, logger)
			dups := feed.Replace(records)
			if !c.Bool("json") {
				fmt.Fprintf(os.Stderr, "Fetched %d records from %d blocks (%d duplicates merged)\n\n", len(records), window, dups)
			}

			rows := make([]transferRow, 0, feed.Len())
			for _, r := range feed.Query(query) {
				rows = append(rows, rowFromRecord(r))
			}

			rows, err = filterRows(rows, codes)
			if err != nil {
				return err
			}
			return printRows(rows, c.Bool("json"))
		},
	}
}

// transferRow is the CLI's output form of a transfer; it is also the input
// document for --must-jq filters.
type transferRow struct {
	TxHash    string    `json:"tx_hash"`
	LogIndex  uint      `json:"log_index"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Value     string    `json:"value"`
	Source    string    `json:"source"`
}

func rowFromRecord(r transfers.Record) transferRow {
	return transferRow{
		TxHash:    r.TxHash,
		LogIndex:  r.LogIndex,
		Timestamp: r.Timestamp,
		Sender:    r.Sender,
		Recipient: r.Recipient,
		Value:     transfers.FormatValue(r.Value),
		Source:    string(r.Source),
	}
}

// parseView builds a feed query from the shared view flags.
func parseView(c *cli.Context) (transfers.Query, error) {
	q := transfers.Query{Filter: transfers.Filter{
		Sender:    c.String("sender"),
		Recipient: c.String("recipient"),
	}}
	if c.String("sort") == "" && c.String("order") == "" {
		return q, nil
	}
	field, err := transfers.ParseSortField(c.String("sort"))
	if err != nil {
		return q, err
	}
	dir, err := transfers.ParseDirection(c.String("order"))
	if err != nil {
		return q, err
	}
	q.SortField = field
	q.SortDir = dir
	return q, nil
}

func compileJQFilters(filters []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return codes, nil
}

// filterRows keeps the rows for which every jq filter is truthy.
func filterRows(rows []transferRow, codes []*gojq.Code) ([]transferRow, error) {
	if len(codes) == 0 {
		return rows, nil
	}
	out := make([]transferRow, 0, len(rows))
	for _, row := range rows {
		doc, err := toJQInput(row)
		if err != nil {
			return nil, err
		}
		if matchesAll(codes, doc) {
			out = append(out, row)
		}
	}
	return out, nil
}

// toJQInput round-trips v through JSON so gojq sees plain maps and slices.
func toJQInput(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jq input: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal jq input: %w", err)
	}
	return doc, nil
}

func matchesAll(codes []*gojq.Code, doc interface{}) bool {
	for _, code := range codes {
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

func printRows(rows []transferRow, jsonOutput bool) error {
	if jsonOutput {
		return outputJSON(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTIME\tFROM\tTO\tVALUE (DAI)\tTX")
	for i, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i,
			transfers.FormatTimestamp(r.Timestamp),
			r.Sender,
			r.Recipient,
			r.Value,
			r.TxHash,
		)
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nTotal: %d transfers\n", len(rows))
	return nil
}

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cliLogger only reports errors, on stderr.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}
