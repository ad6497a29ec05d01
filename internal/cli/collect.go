package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oracular/verdict/internal/attest"
	"github.com/oracular/verdict/internal/escrow"
)

// CollectOptions holds flags for the collect command.
type CollectOptions struct {
	*RootOptions
	Oracle string
}

// NewCollectCommand creates the collect command.
func NewCollectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CollectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "collect <escrow-uid> <fulfillment-uid>",
		Short: "Check whether an escrow is releasable",
		Long: `Check whether an escrow is releasable.

An escrow is releasable when the fulfillment references it and the
oracle has recorded an approving decision for that fulfillment. Exits 0
when collectable, 1 when not.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkCollect(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Oracle, "oracle", "", "oracle address (defaults to configured oracle)")

	return cmd
}

func checkCollect(opts *CollectOptions, escrowUID, fulfillmentUID string, cmd *cobra.Command) error {
	escUID, err := attest.ParseUID(escrowUID)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid escrow uid", err)
	}
	fulUID, err := attest.ParseUID(fulfillmentUID)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid fulfillment uid", err)
	}

	cfg, l, err := openLedger(opts.RootOptions)
	if err != nil {
		return err
	}
	defer l.Close()

	oracleAddr, err := resolveOracle(cfg, opts.Oracle)
	if err != nil {
		return err
	}

	identity, err := cfg.IdentityAddress()
	if err != nil {
		return WrapExitError(ExitCommandError, "resolve identity", err)
	}

	client := escrow.NewClient(l, identity)
	ok, err := client.CanCollect(cmd.Context(), escUID, fulUID, oracleAddr)
	if err != nil {
		return WrapExitError(ExitFailure, "collect check", err)
	}

	f := formatter(cmd, opts.RootOptions)
	if !ok {
		if ferr := f.Success(map[string]bool{"collectable": false}, "not collectable"); ferr != nil {
			return ferr
		}
		return &ExitError{Code: ExitFailure, Message: "escrow not collectable"}
	}
	return f.Success(map[string]bool{"collectable": true},
		fmt.Sprintf("collectable: escrow %s released by oracle %s", escUID, oracleAddr))
}
