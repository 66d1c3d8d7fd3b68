package main

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/daiwatch/client"
)

// healthCommand checks the health of the dashboard server.
func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			if serverURL == "" {
				return fmt.Errorf("server-url is required (set SERVER_URL or use --server-url)")
			}

			cl := client.NewClient(serverURL, nil, cliLogger())
			health, err := cl.Health(c.Context)
			if err != nil {
				return fmt.Errorf("server is unhealthy: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(health)
			}

			fmt.Println("✓ Server is healthy")
			if health.Loaded {
				fmt.Printf("  Transfers:   %d\n", health.Transfers)
			} else {
				fmt.Println("  Transfers:   loading")
			}
			fmt.Printf("  Subscribers: %d\n", health.Subscribers)
			return nil
		},
	}
}

// versionCommand displays version information.
func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("daiwatch %s\n", version)
			fmt.Printf("  commit:     %s\n", commit)
			fmt.Printf("  built:      %s\n", date)
			fmt.Printf("  go version: %s\n", runtime.Version())
			return nil
		},
	}
}
