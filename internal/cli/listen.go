package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oracular/verdict/internal/oracle"
	"github.com/oracular/verdict/internal/policy"
)

// ListenOptions holds flags for the listen command.
type ListenOptions struct {
	*RootOptions
	Oracle         string
	Policy         string
	Timeout        time.Duration
	SkipArbitrated bool
	OnlyNew        bool
}

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Drain past requests, then arbitrate new ones as they arrive",
		Long: `Drain past requests, then arbitrate new ones as they arrive.

Runs the same historical pass as arbitrate, then subscribes to new
arbitration requests and judges each one as it is recorded. Decisions
made while listening are printed as they happen; the timeout is measured
from the moment listening begins.

Example:
  verdict listen --policy 'obligation.item == "good"' --timeout 30s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listenAndArbitrate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Oracle, "oracle", "", "oracle address (defaults to configured oracle)")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "CEL decision policy (required)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "listen window (0 = until interrupted)")
	cmd.Flags().BoolVar(&opts.SkipArbitrated, "skip-arbitrated", false, "skip fulfillments this oracle already decided")
	cmd.Flags().BoolVar(&opts.OnlyNew, "only-new", false, "ignore requests recorded before this run")
	_ = cmd.MarkFlagRequired("policy")

	return cmd
}

func listenAndArbitrate(opts *ListenOptions, cmd *cobra.Command) error {
	cfg, l, err := openLedger(opts.RootOptions)
	if err != nil {
		return err
	}
	defer l.Close()

	oracleAddr, err := resolveOracle(cfg, opts.Oracle)
	if err != nil {
		return err
	}

	ev, err := policy.NewEvaluator()
	if err != nil {
		return WrapExitError(ExitCommandError, "create policy evaluator", err)
	}
	fn, err := ev.Compile(opts.Policy)
	if err != nil {
		return WrapExitError(ExitCommandError, "compile policy", err)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = cfg.Listen.Timeout.Std()
	}

	eng := oracle.New(l, oracleAddr, oracle.WithRetryPolicy(oracle.RetryPolicy{
		MaxRetries:      cfg.Submit.MaxRetries,
		InitialInterval: cfg.Submit.InitialInterval.Std(),
		MaxInterval:     cfg.Submit.MaxInterval.Std(),
	}))

	// Live decisions stream to stdout as they land; the final summary
	// repeats them alongside the historical ones.
	callback := func(ctx context.Context, d oracle.Decision) error {
		if opts.Format == "text" {
			fmt.Fprintf(cmd.OutOrStdout(), "decided %s -> %t (ref %s)\n",
				d.Attestation.UID, d.Decision, d.Ref)
		}
		return nil
	}

	result, err := eng.ListenAndArbitrate(cmd.Context(), fn, callback, oracle.ArbitrateOptions{
		SkipArbitrated: opts.SkipArbitrated,
		OnlyNew:        opts.OnlyNew,
	}, timeout)
	if err != nil {
		return WrapExitError(ExitFailure,
			fmt.Sprintf("listen halted after %d decisions", len(result.Decisions)), err)
	}

	return formatter(cmd, opts.RootOptions).Success(result, renderDecisions(result.Decisions))
}
