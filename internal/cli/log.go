package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oracular/verdict/internal/attest"
	"github.com/oracular/verdict/internal/ledger"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Schema   string
	AfterSeq int64
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Dump the attestation ledger in sequence order",
		Long: `Dump the attestation ledger in sequence order.

Example:
  verdict log --schema verdict.decision.v1 --after 40`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return dumpLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "restrict to one schema")
	cmd.Flags().Int64Var(&opts.AfterSeq, "after", 0, "only records with seq greater than this")

	return cmd
}

// knownSchemas is the full dump set when --schema is not given.
var knownSchemas = []attest.Schema{
	attest.SchemaEscrow,
	attest.SchemaFulfillment,
	attest.SchemaArbitrationRequest,
	attest.SchemaDecision,
}

func dumpLog(opts *LogOptions, cmd *cobra.Command) error {
	_, l, err := openLedger(opts.RootOptions)
	if err != nil {
		return err
	}
	defer l.Close()

	schemas := knownSchemas
	if opts.Schema != "" {
		schemas = []attest.Schema{attest.Schema(opts.Schema)}
	}

	var records []attest.Attestation
	for _, schema := range schemas {
		batch, err := l.Query(cmd.Context(), schema, ledger.Filter{AfterSeq: opts.AfterSeq})
		if err != nil {
			return WrapExitError(ExitFailure, "query ledger", err)
		}
		records = append(records, batch...)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })

	return formatter(cmd, opts.RootOptions).Success(records, RenderLog(records))
}

// RenderLog formats an attestation list as the text ledger dump, one
// record per line in sequence order.
func RenderLog(records []attest.Attestation) string {
	if len(records) == 0 {
		return "empty ledger"
	}

	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-4d %-28s %s", rec.Seq, rec.Schema, rec.UID)
		if !rec.RefUID.IsZero() {
			fmt.Fprintf(&b, " ref=%s", rec.RefUID)
		}
		fmt.Fprintf(&b, " attester=%s recipient=%s time=%d", rec.Attester, rec.Recipient, rec.Time)
		if len(rec.Data) > 0 {
			fmt.Fprintf(&b, " data=%s", rec.Data)
		}
	}
	return b.String()
}
