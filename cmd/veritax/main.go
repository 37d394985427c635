package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "veritax",
		Usage: "Verifiable crypto tax attestation service CLI",
		Description: `A command-line tool for working with the veritax service.

Use this CLI to submit attestation jobs, estimate taxes, fetch wallet
transfer history, and inspect the attestation archive and event stream.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// HTTP API commands
			clientCommands(),
			// Archive inspection commands
			{
				Name:  "db",
				Usage: "Attestation archive inspection commands",
				Subcommands: []*cli.Command{
					listAttestationsCommand(),
					getAttestationCommand(),
					byCommitmentCommand(),
					deleteAttestationCommand(),
				},
			},
			// NATS attestation event commands
			{
				Name:  "nats",
				Usage: "NATS attestation event streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// SSE streaming commands
			sseCommands(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Server URL for HTTP API commands",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
