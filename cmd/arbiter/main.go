// Package main is the entry point for the arbiter binary.
// It provides a CLI for one-shot evaluations and for auditing an existing
// attestation ledger file.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/arbiterai/arbiter-oss/pkg/config"
	"github.com/arbiterai/arbiter-oss/pkg/domain"
	"github.com/arbiterai/arbiter-oss/pkg/engine"
	"github.com/arbiterai/arbiter-oss/pkg/evaluator"
	"github.com/arbiterai/arbiter-oss/pkg/evaluator/local"
	"github.com/arbiterai/arbiter-oss/pkg/ledger"
	"github.com/arbiterai/arbiter-oss/pkg/logging"
	"github.com/arbiterai/arbiter-oss/pkg/stats"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for arbiter
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "arbiter",
		Short: "Governance evaluation and attestation ledger tooling",
		Long: `Run one-shot governance evaluations with the built-in evaluator panel,
and inspect or verify an attestation ledger file produced by arbiter-core.

Examples:
  arbiter evaluate "The Sydney Opera House opened in 1973."
  cat narrative.txt | arbiter evaluate
  arbiter verify --ledger /var/lib/arbiter/ledger.jsonl
  arbiter stats --ledger /var/lib/arbiter/ledger.jsonl`,
	}

	rootCmd.PersistentFlags().StringP("log-level", "l", "error", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newEvaluateCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newStatsCmd())

	return rootCmd
}

func cliLogger(cmd *cobra.Command) *slog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	return logging.NewLogger(logging.Config{Level: level, Pretty: true})
}

// newEvaluateCmd creates the one-shot evaluation command. It runs the five
// built-in evaluators against the given content and prints the decision and
// its attestation record.
func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate [content]",
		Short: "Evaluate one narrative with the built-in evaluator panel",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd, args)
			if err != nil {
				return err
			}
			if content == "" {
				return domain.ErrEmptyContent
			}

			logger := cliLogger(cmd)

			clients, err := localPanel()
			if err != nil {
				return err
			}

			led, err := ledger.Open(ledger.NewMemoryStore(), logger)
			if err != nil {
				return err
			}
			coord := engine.New(clients, led, engine.Config{Logger: logger})
			defer coord.Close()

			decision, rec, err := coord.Process(cmd.Context(), &domain.EvaluationRequest{Content: content})
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), struct {
				Decision *domain.GovernanceDecision `json:"decision"`
				Record   *domain.AttestationRecord  `json:"record"`
			}{decision, rec})
		},
	}
	return cmd
}

// newVerifyCmd creates the ledger integrity check command.
func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the hash chain of an attestation ledger file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			led, store, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := led.Verify(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.OK {
				return fmt.Errorf("chain broken at sequence %d: repair the store, then clear the latch on the running service with POST /v1/verify/acknowledge", report.BrokenSequence)
			}
			return nil
		},
	}
	cmd.Flags().String("ledger", "", "Path to the ledger JSONL file")
	_ = cmd.MarkFlagRequired("ledger")
	return cmd
}

// newStatsCmd creates the aggregate statistics command.
func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the aggregate governance view of a ledger file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			led, store, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := stats.New(led).Report(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().String("ledger", "", "Path to the ledger JSONL file")
	_ = cmd.MarkFlagRequired("ledger")
	return cmd
}

func openLedger(cmd *cobra.Command) (*ledger.Ledger, ledger.Store, error) {
	path, err := cmd.Flags().GetString("ledger")
	if err != nil {
		return nil, nil, err
	}
	store, err := ledger.NewFileStore(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open ledger file: %w", err)
	}
	led, err := ledger.Open(store, cliLogger(cmd))
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return led, store, nil
}

// localPanel builds the default five-evaluator panel from the built-in
// scorers, in canonical role order.
func localPanel() ([]evaluator.Client, error) {
	specs := config.DefaultSpecs()
	byRole, err := local.Clients(specs)
	if err != nil {
		return nil, err
	}
	clients := make([]evaluator.Client, 0, len(specs))
	for _, spec := range specs {
		clients = append(clients, byRole[spec.Role])
	}
	return clients, nil
}

// readContent takes the narrative from the argument, or from stdin when no
// argument is given.
func readContent(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read content from stdin: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
