package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oracular/verdict/internal/attest"
	"github.com/oracular/verdict/internal/escrow"
)

// AttestOptions holds flags for the attest subcommands.
type AttestOptions struct {
	*RootOptions
	Arbiter    string
	Demand     string
	Expiration int64
	Item       string
}

// NewAttestCommand creates the attest command group.
func NewAttestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AttestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "attest",
		Short: "Record participant attestations on the ledger",
	}

	escrowCmd := &cobra.Command{
		Use:   "escrow",
		Short: "Record an escrow attestation carrying a demand",
		Long: `Record an escrow attestation carrying a demand.

The demand names the arbiter whose approval releases the escrow and an
opaque payload that only the arbiter's decision logic interprets.

Example:
  verdict attest escrow --arbiter 0xa11c...e5 --demand '{"mode":"exact"}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return attestEscrow(opts, cmd)
		},
	}
	escrowCmd.Flags().StringVar(&opts.Arbiter, "arbiter", "", "arbiter address (required)")
	escrowCmd.Flags().StringVar(&opts.Demand, "demand", "{}", "demand payload as JSON")
	escrowCmd.Flags().Int64Var(&opts.Expiration, "expiration", 0, "expiration as unix seconds (0 = never)")
	_ = escrowCmd.MarkFlagRequired("arbiter")

	fulfillCmd := &cobra.Command{
		Use:   "fulfill <escrow-uid>",
		Short: "Record a fulfillment referencing an escrow",
		Long: `Record a fulfillment referencing an escrow.

Example:
  verdict attest fulfill 0x3f9a...c2 --item good`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return attestFulfill(opts, args[0], cmd)
		},
	}
	fulfillCmd.Flags().StringVar(&opts.Item, "item", "", "obligation item (required)")
	_ = fulfillCmd.MarkFlagRequired("item")

	cmd.AddCommand(escrowCmd)
	cmd.AddCommand(fulfillCmd)
	return cmd
}

func attestEscrow(opts *AttestOptions, cmd *cobra.Command) error {
	arbiter, err := attest.ParseAddress(opts.Arbiter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --arbiter", err)
	}

	// The payload stays opaque on the ledger, but reject malformed JSON
	// here rather than at arbitration time.
	var payload json.RawMessage
	if err := json.Unmarshal([]byte(opts.Demand), &payload); err != nil {
		return WrapExitError(ExitCommandError, "invalid --demand JSON", err)
	}

	cfg, l, err := openLedger(opts.RootOptions)
	if err != nil {
		return err
	}
	defer l.Close()

	identity, err := cfg.IdentityAddress()
	if err != nil {
		return WrapExitError(ExitCommandError, "resolve identity", err)
	}

	client := escrow.NewClient(l, identity)
	rec, err := client.CreateEscrow(cmd.Context(), attest.Demand{
		Arbiter: arbiter,
		Payload: payload,
	}, opts.Expiration)
	if err != nil {
		return WrapExitError(ExitFailure, "create escrow", err)
	}

	return formatter(cmd, opts.RootOptions).Success(rec,
		fmt.Sprintf("escrow %s (seq %d)", rec.UID, rec.Seq))
}

func attestFulfill(opts *AttestOptions, escrowUID string, cmd *cobra.Command) error {
	uid, err := attest.ParseUID(escrowUID)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid escrow uid", err)
	}

	cfg, l, err := openLedger(opts.RootOptions)
	if err != nil {
		return err
	}
	defer l.Close()

	identity, err := cfg.IdentityAddress()
	if err != nil {
		return WrapExitError(ExitCommandError, "resolve identity", err)
	}

	client := escrow.NewClient(l, identity)
	rec, err := client.Fulfill(cmd.Context(), uid, opts.Item)
	if err != nil {
		return WrapExitError(ExitFailure, "record fulfillment", err)
	}

	return formatter(cmd, opts.RootOptions).Success(rec,
		fmt.Sprintf("fulfillment %s (seq %d)", rec.UID, rec.Seq))
}
