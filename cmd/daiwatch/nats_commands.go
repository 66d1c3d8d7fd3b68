package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	natspkg "github.com/brojonat/daiwatch/service/nats"
)

// subscribeCommand subscribes to transfer events published by the server.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to transfer events",
		ArgsUsage: "[contract_address]",
		Description: `Subscribe to transfer events published to NATS JetStream.

Events are published to the subject: transfers.{contract_address}
Without a contract address every transfer subject is consumed.

Example:
  daiwatch nats subscribe 0x6B175474E89094C44Da98b954EedeAC495271d0F --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "daiwatch-cli",
			},
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.StreamSubjects
			if c.NArg() > 0 {
				subject = natspkg.SubjectPrefix + c.Args().First()
			}
			return streamTransfers(c.Context, c.String("nats-url"), subject, c.Bool("durable"), c.String("consumer-name"), c.Bool("json"))
		},
	}
}

// inspectStreamCommand prints the state of the transfer stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the transfer stream's state",
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
			defer cancel()

			stream, err := js.Stream(ctx, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream %s: %w", natspkg.StreamName, err)
			}
			info, err := stream.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(info)
			}
			fmt.Printf("Stream:    %s\n", info.Config.Name)
			fmt.Printf("Subjects:  %v\n", info.Config.Subjects)
			fmt.Printf("Messages:  %d\n", info.State.Msgs)
			fmt.Printf("Bytes:     %d\n", info.State.Bytes)
			fmt.Printf("First seq: %d (%s)\n", info.State.FirstSeq, info.State.FirstTime.Format(time.RFC3339))
			fmt.Printf("Last seq:  %d (%s)\n", info.State.LastSeq, info.State.LastTime.Format(time.RFC3339))
			fmt.Printf("Consumers: %d\n", info.State.Consumers)
			return nil
		},
	}
}

// streamTransfers connects to NATS and prints transfer events until interrupted.
func streamTransfers(ctx context.Context, natsURL, subject string, durable bool, consumerName string, jsonOutput bool) error {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if durable {
		consumerConfig.Durable = consumerName
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if !jsonOutput {
		fmt.Fprintf(os.Stderr, "Subscribed to %s (Ctrl+C to stop)\n\n", subject)
	}

	msgChan := make(chan jetstream.Msg, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for {
		select {
		case msg := <-msgChan:
			var event natspkg.TransferEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				msg.Ack()
				continue
			}

			if jsonOutput {
				data, _ := json.Marshal(event)
				fmt.Println(string(data))
			} else {
				fmt.Printf("%s  %s -> %s  %s DAI\n", event.BlockTime.Format(time.RFC3339), event.Sender, event.Recipient, event.Value)
				fmt.Printf("  tx %s #%d (block %d, %s)\n\n", event.TxHash, event.LogIndex, event.BlockNumber, event.Source)
			}
			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "\nStopped\n")
			}
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}
