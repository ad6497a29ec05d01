package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oracular/verdict/internal/attest"
	"github.com/oracular/verdict/internal/escrow"
)

// RequestOptions holds flags for the request command.
type RequestOptions struct {
	*RootOptions
	Oracle string
}

// NewRequestCommand creates the request command.
func NewRequestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RequestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "request <fulfillment-uid>",
		Short: "Request arbitration of a fulfillment",
		Long: `Request arbitration of a fulfillment.

The request is addressed to an oracle; it is the trigger that oracle's
arbitrate and listen runs discover. The oracle defaults to the one
configured in the config file.

Example:
  verdict request 0x8be1...04 --oracle 0xa11c...e5`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return requestArbitration(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Oracle, "oracle", "", "oracle address (defaults to configured oracle)")

	return cmd
}

func requestArbitration(opts *RequestOptions, fulfillmentUID string, cmd *cobra.Command) error {
	uid, err := attest.ParseUID(fulfillmentUID)
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
	rec, err := client.RequestArbitration(cmd.Context(), uid, oracleAddr)
	if err != nil {
		return WrapExitError(ExitFailure, "request arbitration", err)
	}

	return formatter(cmd, opts.RootOptions).Success(rec,
		fmt.Sprintf("arbitration request %s (seq %d)", rec.UID, rec.Seq))
}
