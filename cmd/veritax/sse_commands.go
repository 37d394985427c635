package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	natspkg "github.com/veritax/veritax/service/nats"
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
		Name:      "stream",
		Usage:     "Stream attestation job events via SSE (HTTP)",
		ArgsUsage: "JOB_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "HTTP server URL",
				EnvVars: []string{"SERVER_URL"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output events as JSON (one per line)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("job ID is required")
			}

			serverURL := c.String("server")
			jobID := c.Args().Get(0)
			jsonOutput := c.Bool("json")

			url := fmt.Sprintf("%s/api/v1/attestations/%s/stream", serverURL, jobID)

			// Create context that cancels on interrupt
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			client := &http.Client{
				Timeout: 0, // No timeout for streaming
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Connected to SSE stream for job: %s\n", jobID)
				fmt.Fprintf(os.Stderr, "Streaming events... (Ctrl+C to stop)\n\n")
			}

			// Read SSE events
			scanner := bufio.NewScanner(resp.Body)
			var currentEvent, currentData string

			for scanner.Scan() {
				line := scanner.Text()

				// Empty line indicates end of event
				if line == "" {
					if currentEvent != "" && currentData != "" {
						if err := handleSSEEvent(currentEvent, currentData, jsonOutput); err != nil {
							fmt.Fprintf(os.Stderr, "Error handling event: %v\n", err)
						}
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

			if err := scanner.Err(); err != nil {
				if ctx.Err() != nil {
					// Context cancelled (user interrupt)
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

func handleSSEEvent(eventType, data string, jsonOutput bool) error {
	switch eventType {
	case "connected":
		if !jsonOutput {
			var info map[string]interface{}
			if err := json.Unmarshal([]byte(data), &info); err != nil {
				return err
			}
			if jobID, ok := info["job_id"].(string); ok {
				fmt.Fprintf(os.Stderr, "Subscribed to job: %s\n\n", jobID)
			}
		}
		return nil

	case "attestation":
		var event natspkg.AttestationEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return err
		}

		if jsonOutput {
			fmt.Println(data)
		} else {
			fmt.Printf("[%s] job %s: %s\n", time.Now().Format(time.RFC3339), event.JobID, event.Status)
			if event.Status == "done" {
				fmt.Printf("  Total tax:  %d paisa\n", event.TotalTaxPaisa)
				fmt.Printf("  Commitment: %s\n", event.LedgerCommitment)
				fmt.Printf("  VK hash:    %s\n", event.VKHash)
			}
		}
		return nil

	case "error":
		var errInfo map[string]interface{}
		if err := json.Unmarshal([]byte(data), &errInfo); err != nil {
			return err
		}
		return fmt.Errorf("server error: %v", errInfo["error"])

	default:
		// Unknown event type, ignore
		return nil
	}
}
