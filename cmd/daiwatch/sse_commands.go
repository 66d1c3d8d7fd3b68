package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/daiwatch/client"
	"github.com/brojonat/daiwatch/service/transfers"
)

func sseCommands() *cli.Command {
	return &cli.Command{
		Name:  "sse",
		Usage: "Server-Sent Events (SSE) streaming commands",
		Subcommands: []*cli.Command{
			streamCommand(),
		},
	}
}

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:  "stream",
		Usage: "Stream live transfers from the dashboard via SSE (HTTP)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "sender",
				Usage: "Only stream transfers whose sender contains this text",
			},
			&cli.StringFlag{
				Name:  "recipient",
				Usage: "Only stream transfers whose recipient contains this text",
			},
		},
		Action: func(c *cli.Context) error {
			jsonOutput := c.Bool("json")

			q := url.Values{}
			if s := c.String("sender"); s != "" {
				q.Set("sender", s)
			}
			if s := c.String("recipient"); s != "" {
				q.Set("recipient", s)
			}
			endpoint := strings.TrimSuffix(c.String("server-url"), "/") + "/api/v1/stream/transfers"
			if len(q) > 0 {
				endpoint += "?" + q.Encode()
			}

			// Create context that cancels on interrupt
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			httpClient := &http.Client{
				Timeout: 0, // No timeout for streaming
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Connected to %s\n", endpoint)
				fmt.Fprintf(os.Stderr, "Streaming transfers... (Ctrl+C to stop)\n\n")
			}

			err = readSSE(resp.Body, func(event, data string) {
				if err := handleSSEEvent(event, data, jsonOutput); err != nil {
					fmt.Fprintf(os.Stderr, "Error handling event: %v\n", err)
				}
			})
			if err != nil {
				if ctx.Err() != nil {
					if !jsonOutput {
						fmt.Fprintf(os.Stderr, "\nDisconnected\n")
					}
					return nil
				}
				return fmt.Errorf("error reading SSE stream: %w", err)
			}
			return nil
		},
	}
}

// readSSE parses an event stream and calls fn for every complete event.
// Comment lines (keepalives) are ignored.
func readSSE(r io.Reader, fn func(event, data string)) error {
	scanner := bufio.NewScanner(r)
	var currentEvent, currentData string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line indicates end of event
		if line == "" {
			if currentEvent != "" && currentData != "" {
				fn(currentEvent, currentData)
			}
			currentEvent = ""
			currentData = ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			currentData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	return scanner.Err()
}

func handleSSEEvent(eventType, data string, jsonOutput bool) error {
	switch eventType {
	case "connected":
		if !jsonOutput {
			var info struct {
				Loaded bool `json:"loaded"`
				Count  int  `json:"count"`
			}
			if err := json.Unmarshal([]byte(data), &info); err != nil {
				return err
			}
			if info.Loaded {
				fmt.Fprintf(os.Stderr, "Dashboard has %d transfers\n\n", info.Count)
			} else {
				fmt.Fprintf(os.Stderr, "Dashboard is still loading events\n\n")
			}
		}

	case "transfer", "removed":
		if jsonOutput {
			fmt.Printf("{\"event\":%q,\"data\":%s}\n", eventType, data)
			return nil
		}
		var t client.Transfer
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return fmt.Errorf("failed to parse transfer: %w", err)
		}
		if eventType == "removed" {
			fmt.Printf("✗ removed %s #%d\n", t.TxHash, t.LogIndex)
			return nil
		}
		fmt.Printf("%s  %s -> %s  %s DAI\n  %s\n",
			t.TimestampDisplay,
			t.Sender,
			t.Recipient,
			transfers.FormatValue(t.Value),
			t.TxHash,
		)

	default:
		if !jsonOutput {
			fmt.Fprintf(os.Stderr, "unknown event %q\n", eventType)
		}
	}
	return nil
}
