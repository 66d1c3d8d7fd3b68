package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/daiwatch/service/db"
	"github.com/brojonat/daiwatch/service/transfers"
)

// getStore creates a database store from the context's database URL.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database URL is required (set DATABASE_URL or use --database-url)")
	}

	pool, err := db.Connect(context.Background(), dbURL)
	if err != nil {
		return nil, nil, err
	}

	return db.NewStore(pool, nil), pool.Close, nil
}

func listArchivedTransfersCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List archived transfers, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "sender",
				Usage: "Only list transfers whose sender contains this text",
			},
			&cli.StringFlag{
				Name:  "recipient",
				Usage: "Only list transfers whose recipient contains this text",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   50,
				Usage:   "Maximum number of transfers to return",
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of transfers to skip",
			},
		},
		Action: func(c *cli.Context) error {
			store, closeFn, err := getStore(c)
			if err != nil {
				return err
			}
			defer closeFn()

			records, err := store.ListRecentTransfers(c.Context, db.ListParams{
				Sender:    c.String("sender"),
				Recipient: c.String("recipient"),
				Limit:     int32(c.Int("limit")),
				Offset:    int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list transfers: %w", err)
			}

			if c.Bool("json") {
				rows := make([]transferRow, len(records))
				for i, r := range records {
					rows[i] = rowFromRecord(r)
				}
				return outputJSON(rows)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BLOCK\tTIME\tFROM\tTO\tVALUE (DAI)\tTX\tLOG")
			for _, r := range records {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
					r.BlockNumber,
					transfers.FormatTimestamp(r.Timestamp),
					r.Sender,
					r.Recipient,
					transfers.FormatValue(r.Value),
					r.TxHash,
					r.LogIndex,
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nShowing: %d transfers\n", len(records))
			return nil
		},
	}
}

func countArchivedTransfersCommand() *cli.Command {
	return &cli.Command{
		Name:  "count",
		Usage: "Count archived transfers",
		Action: func(c *cli.Context) error {
			store, closeFn, err := getStore(c)
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := store.CountTransfers(c.Context)
			if err != nil {
				return fmt.Errorf("failed to count transfers: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(map[string]int64{"count": n})
			}
			fmt.Printf("%d\n", n)
			return nil
		},
	}
}
