package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/veritax/veritax/service/db"
)

func listAttestationsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-attestations",
		Usage:   "List archived attestations",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of attestations to return",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of attestations to skip",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			attestations, err := store.ListAttestations(context.Background(),
				int32(c.Int("limit")), int32(c.Int("offset")))
			if err != nil {
				return fmt.Errorf("failed to list attestations: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(attestations)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "JOB ID\tUSER TYPE\tWALLETS\tROWS\tTAX (PAISA)\tCREATED")
			for _, a := range attestations {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
					a.JobID, a.UserType, a.WalletCount, a.LedgerRows,
					a.TotalTaxPaisa, a.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func getAttestationCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-attestation",
		Usage:     "Show an archived attestation",
		ArgsUsage: "JOB_ID",
		Aliases:   []string{"get"},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("job ID is required")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			a, err := store.GetAttestation(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get attestation: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(a)
			}

			fmt.Printf("Job ID:       %s\n", a.JobID)
			fmt.Printf("User type:    %s\n", a.UserType)
			fmt.Printf("44ADA:        %v\n", a.Use44ADA)
			fmt.Printf("Wallets:      %d\n", a.WalletCount)
			fmt.Printf("Ledger rows:  %d\n", a.LedgerRows)
			fmt.Printf("Total tax:    %d paisa\n", a.TotalTaxPaisa)
			fmt.Printf("Commitment:   %s\n", a.LedgerCommitment)
			fmt.Printf("VK hash:      %s\n", a.VKHash)
			fmt.Printf("Created:      %s\n", a.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func byCommitmentCommand() *cli.Command {
	return &cli.Command{
		Name:      "by-commitment",
		Usage:     "List attestations sharing a ledger commitment",
		ArgsUsage: "COMMITMENT_HEX",
		Description: `Look up archived attestations by their ledger commitment. Useful
for checking whether the same ledger has been attested more than once,
possibly under different user types.`,
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("commitment is required")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			attestations, err := store.ListAttestationsByCommitment(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to list attestations: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(attestations)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "JOB ID\tUSER TYPE\tTAX (PAISA)\tCREATED")
			for _, a := range attestations {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					a.JobID, a.UserType, a.TotalTaxPaisa, a.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func deleteAttestationCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-attestation",
		Usage:     "Delete an archived attestation",
		ArgsUsage: "JOB_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("job ID is required")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			jobID := c.Args().Get(0)
			if err := store.DeleteAttestation(context.Background(), jobID); err != nil {
				return fmt.Errorf("failed to delete attestation: %w", err)
			}

			fmt.Printf("Deleted attestation %s\n", jobID)
			return nil
		},
	}
}

// getStore connects to the database using the global database-url flag.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" && c.App != nil {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// outputJSON writes indented JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
