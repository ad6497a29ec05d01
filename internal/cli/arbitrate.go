package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oracular/verdict/internal/oracle"
	"github.com/oracular/verdict/internal/policy"
)

// ArbitrateOptions holds flags for the arbitrate command.
type ArbitrateOptions struct {
	*RootOptions
	Oracle         string
	Policy         string
	SkipArbitrated bool
	OnlyNew        bool
}

// NewArbitrateCommand creates the arbitrate command.
func NewArbitrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ArbitrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "arbitrate",
		Short: "Arbitrate every past request and exit",
		Long: `Arbitrate every past request and exit.

Processes arbitration requests addressed to the oracle that were
recorded before the run started, judging each fulfillment against the
CEL policy and writing a decision attestation per verdict.

Example:
  verdict arbitrate --policy 'obligation.item == "good"' --skip-arbitrated`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return arbitratePast(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Oracle, "oracle", "", "oracle address (defaults to configured oracle)")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "CEL decision policy (required)")
	cmd.Flags().BoolVar(&opts.SkipArbitrated, "skip-arbitrated", false, "skip fulfillments this oracle already decided")
	cmd.Flags().BoolVar(&opts.OnlyNew, "only-new", false, "ignore requests recorded before this run")
	_ = cmd.MarkFlagRequired("policy")

	return cmd
}

func arbitratePast(opts *ArbitrateOptions, cmd *cobra.Command) error {
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

	eng := oracle.New(l, oracleAddr, oracle.WithRetryPolicy(oracle.RetryPolicy{
		MaxRetries:      cfg.Submit.MaxRetries,
		InitialInterval: cfg.Submit.InitialInterval.Std(),
		MaxInterval:     cfg.Submit.MaxInterval.Std(),
	}))

	result, err := eng.ArbitratePast(cmd.Context(), fn, oracle.ArbitrateOptions{
		SkipArbitrated: opts.SkipArbitrated,
		OnlyNew:        opts.OnlyNew,
	})
	if err != nil {
		// Partial decisions are already committed to the ledger; report
		// the halt without pretending the run was clean.
		return WrapExitError(ExitFailure,
			fmt.Sprintf("arbitration halted after %d decisions", len(result.Decisions)), err)
	}

	return formatter(cmd, opts.RootOptions).Success(result, renderDecisions(result.Decisions))
}

// renderDecisions formats a decision list for text output.
func renderDecisions(decisions []oracle.Decision) string {
	if len(decisions) == 0 {
		return "no decisions"
	}
	out := fmt.Sprintf("%d decision(s)", len(decisions))
	for _, d := range decisions {
		out += fmt.Sprintf("\n  %s -> %t (ref %s)", d.Attestation.UID, d.Decision, d.Ref)
	}
	return out
}
