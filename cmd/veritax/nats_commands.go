package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	natspkg "github.com/veritax/veritax/service/nats"
)

// subscribeCommand subscribes to attestation lifecycle events.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to attestation events",
		ArgsUsage: "[job_id]",
		Description: `Subscribe to attestation lifecycle events published to NATS
JetStream. Without a job ID this streams events for all jobs; with one
it streams only the subject attestations.{job_id}.

Events can be filtered with jq expressions evaluated against the event
JSON. All filters must evaluate to true for an event to be printed.

Example:
  veritax nats subscribe --must-jq '.status == "done"' --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "veritax-cli",
			},
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq filter that must evaluate to true (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			subject := "attestations.>"
			if c.NArg() > 0 {
				subject = fmt.Sprintf("attestations.%s", c.Args().Get(0))
			}

			filters, err := compileJQFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			return streamAttestationEvents(subject, c.String("nats-url"),
				c.Bool("durable"), c.String("consumer-name"), c.Bool("json"), filters)
		},
	}
}

// streamAttestationEvents connects to NATS and streams attestation events.
func streamAttestationEvents(subject, natsURL string, durable bool, consumerName string, jsonOutput bool, filters []*gojq.Code) error {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if !jsonOutput {
		fmt.Printf("Subscribing to: %s\n", subject)
		fmt.Printf("  NATS: %s\n", natsURL)
		if durable {
			fmt.Printf("  Consumer: %s (durable)\n", consumerName)
		}
		fmt.Printf("\nWaiting for events... (Ctrl-C to exit)\n\n")
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if durable {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
	}

	cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	msgChan := make(chan jetstream.Msg, 10)
	go func() {
		_, _ = cons.Consume(func(msg jetstream.Msg) {
			msgChan <- msg
		})
	}()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.AttestationEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				if !jsonOutput {
					fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				}
				msg.Ack()
				continue
			}

			if !eventMatchesFilters(msg.Data(), filters) {
				msg.Ack()
				continue
			}

			count++

			if jsonOutput {
				fmt.Println(string(msg.Data()))
			} else {
				printAttestationEvent(count, event)
			}

			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Printf("\n\nReceived %d event(s)\n", count)
				fmt.Println("Shutting down...")
			}
			return nil
		}
	}
}

func printAttestationEvent(n int, event natspkg.AttestationEvent) {
	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Event #%d\n", n)
	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Job:        %s\n", event.JobID)
	fmt.Printf("Status:     %s\n", event.Status)
	if event.TotalTaxPaisa > 0 {
		fmt.Printf("Total tax:  %d paisa\n", event.TotalTaxPaisa)
	}
	if event.LedgerCommitment != "" {
		fmt.Printf("Commitment: %s\n", event.LedgerCommitment)
	}
	if event.VKHash != "" {
		fmt.Printf("VK hash:    %s\n", event.VKHash)
	}
	fmt.Printf("Published:  %s\n", event.PublishedAt.Format(time.RFC3339))
	fmt.Printf("\n")
}

// compileJQFilters parses and compiles the --must-jq expressions.
func compileJQFilters(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// eventMatchesFilters reports whether every compiled filter evaluates to
// a truthy value against the raw event JSON.
func eventMatchesFilters(raw []byte, filters []*gojq.Code) bool {
	if len(filters) == 0 {
		return true
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false
	}

	for _, code := range filters {
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

// isTruthy follows jq semantics: false and null are falsy, everything
// else is truthy.
func isTruthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}

// inspectStreamCommand shows information about the attestation stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the ATTESTATIONS JetStream stream",
		Description: `Show information about the JetStream stream including:
- Message count
- Consumers
- Storage usage
- Stream configuration

Example:
  veritax nats inspect-stream`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
		},
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")
			jsonOutput := c.Bool("json")

			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(info, "", "  ")
				fmt.Println(string(data))
			} else {
				fmt.Printf("Stream: %s\n", info.Config.Name)
				fmt.Printf("─────────────────────────────────────────────────────\n")
				fmt.Printf("Description:  %s\n", info.Config.Description)
				fmt.Printf("Subjects:     %v\n", info.Config.Subjects)
				fmt.Printf("Messages:     %d\n", info.State.Msgs)
				fmt.Printf("Bytes:        %d\n", info.State.Bytes)
				fmt.Printf("First Seq:    %d\n", info.State.FirstSeq)
				fmt.Printf("Last Seq:     %d\n", info.State.LastSeq)
				fmt.Printf("Consumers:    %d\n", info.State.Consumers)
				fmt.Printf("Max Age:      %s\n", info.Config.MaxAge)
				fmt.Printf("Storage:      %s\n", info.Config.Storage)
				fmt.Printf("\n")
			}

			return nil
		},
	}
}
