package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/veritax/veritax/client"
	"github.com/veritax/veritax/service/ledger"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the veritax service",
		Subcommands: []*cli.Command{
			attestCommand(),
			statusCommand(),
			estimateCommand(),
			transfersCommand(),
			ensCommand(),
			vkeyCommand(),
		},
	}
}

func attestCommand() *cli.Command {
	return &cli.Command{
		Name:      "attest",
		Usage:     "Submit an attestation job",
		ArgsUsage: "INPUT_FILE",
		Description: `Submit a tax input document for attestation. The input is a JSON
file (or - for stdin) containing the user type, wallets, ledger rows,
prices, and USD/INR rate.

Example:
  veritax client attest input.json --wait`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Block until the job reaches a terminal status",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "Polling interval when waiting",
				Value: 2 * time.Second,
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "How long to wait for the job to finish",
				Value:   5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			input, err := readTaxInput(c)
			if err != nil {
				return err
			}

			cl := newAPIClient(c)
			ctx := context.Background()

			jobID, err := cl.SubmitAttestation(ctx, *input)
			if err != nil {
				return fmt.Errorf("failed to submit attestation: %w", err)
			}

			if !c.Bool("wait") {
				if c.Bool("json") {
					return outputJSON(map[string]string{"job_id": jobID, "status": "pending"})
				}
				fmt.Printf("Job submitted: %s\n", jobID)
				fmt.Printf("Poll with: veritax client status %s\n", jobID)
				return nil
			}

			if !c.Bool("json") {
				fmt.Fprintf(os.Stderr, "Waiting for job %s...\n", jobID)
			}

			waitCtx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
			defer cancel()

			job, err := cl.AwaitAttestation(waitCtx, jobID, c.Duration("poll-interval"))
			if err != nil {
				return fmt.Errorf("failed to await attestation: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(job)
			}
			printAttestation(job)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the status of an attestation job",
		ArgsUsage: "JOB_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("job ID is required")
			}

			cl := newAPIClient(c)
			job, err := cl.GetAttestation(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get attestation: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(job)
			}
			printAttestation(job)
			return nil
		},
	}
}

func estimateCommand() *cli.Command {
	return &cli.Command{
		Name:      "estimate",
		Usage:     "Compute a plaintext tax estimate without proving",
		ArgsUsage: "INPUT_FILE",
		Action: func(c *cli.Context) error {
			input, err := readTaxInput(c)
			if err != nil {
				return err
			}

			cl := newAPIClient(c)
			estimate, err := cl.EstimateTax(context.Background(), *input)
			if err != nil {
				return fmt.Errorf("failed to estimate tax: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(estimate)
			}

			b := estimate.Breakdown
			fmt.Printf("Professional income: ₹%s (taxable ₹%s)\n", b.ProfessionalIncomeINR, b.TaxableProfessionalIncomeINR)
			fmt.Printf("VDA gains:           ₹%s (losses ₹%s)\n", b.VDAGainsINR, b.VDALossesINR)
			fmt.Printf("Professional tax:    ₹%s\n", b.ProfessionalTaxINR)
			fmt.Printf("VDA tax:             ₹%s\n", b.VDATaxINR)
			fmt.Printf("Cess:                ₹%s\n", b.CessINR)
			fmt.Printf("Total tax:           ₹%s (%d paisa)\n", b.TotalTaxINR, estimate.TotalTaxPaisa)
			return nil
		},
	}
}

func transfersCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfers",
		Usage:     "Fetch and categorize transfer history for wallets",
		ArgsUsage: "WALLET [WALLET...]",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("at least one wallet is required")
			}

			cl := newAPIClient(c)
			report, err := cl.GetTransfers(context.Background(), c.Args().Slice())
			if err != nil {
				return fmt.Errorf("failed to fetch transfers: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(report)
			}

			for _, wc := range report.WalletCounts {
				fmt.Fprintf(os.Stderr, "%s: %d rows\n", wc.Wallet, wc.Count)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tASSET\tAMOUNT\tDIR\tCATEGORY\tCOUNTERPARTY\tTX")
			for _, row := range report.Ledger {
				ts := "unknown"
				if row.BlockTime > 0 {
					ts = time.Unix(int64(row.BlockTime), 0).UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					ts, row.Asset, row.Amount, row.Direction, row.Category,
					formatOptionalAddress(row.Counterparty), truncate(row.TxHash, 16))
			}
			return w.Flush()
		},
	}
}

func ensCommand() *cli.Command {
	return &cli.Command{
		Name:      "ens",
		Usage:     "List subdomains of an ENS name with resolved addresses",
		ArgsUsage: "NAME",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("ENS name is required")
			}

			cl := newAPIClient(c)
			names, err := cl.ResolveENS(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to resolve ENS name: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(names)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADDRESS")
			for _, n := range names {
				fmt.Fprintf(w, "%s\t%s\n", n.Name, formatOptionalAddress(n.Address))
			}
			return w.Flush()
		},
	}
}

func vkeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "vkey",
		Usage: "Show the verification key hash the server proves against",
		Action: func(c *cli.Context) error {
			cl := newAPIClient(c)
			hash, err := cl.VKeyHash(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get verification key: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(map[string]string{"vk_hash": hash})
			}
			fmt.Println(hash)
			return nil
		},
	}
}

func newAPIClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	httpClient := &http.Client{Timeout: 60 * time.Second}
	return client.NewClient(c.String("server-url"), httpClient, logger)
}

// readTaxInput loads a TaxInput from the first argument, reading stdin
// when the argument is "-" or absent.
func readTaxInput(c *cli.Context) (*ledger.TaxInput, error) {
	var data []byte
	var err error

	path := c.Args().Get(0)
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var input ledger.TaxInput
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}
	return &input, nil
}

func printAttestation(job *client.Attestation) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Job:        %s\n", job.ID)
	fmt.Printf("Status:     %s\n", job.Status)
	fmt.Printf("Created:    %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Printf("Completed:  %s\n", job.CompletedAt.Format(time.RFC3339))
	}
	if job.Error != "" {
		fmt.Printf("Error:      %s\n", job.Error)
	}
	if job.Result != nil {
		fmt.Printf("Total tax:  %d paisa\n", job.Result.TotalTaxPaisa)
		fmt.Printf("Commitment: %s\n", job.Result.LedgerCommitment)
		fmt.Printf("VK hash:    %s\n", job.Result.VKHash)
		fmt.Printf("Proof:      %s\n", truncate(job.Result.Proof, 48))
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func formatOptionalAddress(addr *string) string {
	if addr != nil && *addr != "" {
		return *addr
	}
	return "(unknown)"
}
