package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/oracular/verdict/internal/attest"
	"github.com/oracular/verdict/internal/config"
	"github.com/oracular/verdict/internal/ledger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the verdict CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "verdict",
		Short: "Verdict - off-chain oracle arbitration",
		Long:  "An arbitration engine that resolves escrowed obligations by judging\nfulfillment attestations on an append-only ledger.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewAttestCommand(opts))
	cmd.AddCommand(NewRequestCommand(opts))
	cmd.AddCommand(NewArbitrateCommand(opts))
	cmd.AddCommand(NewListenCommand(opts))
	cmd.AddCommand(NewCollectCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// setupLogging routes slog to stderr; verbose lowers the level to debug.
func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// openLedger loads the config and opens the configured SQLite ledger.
// The caller owns the returned ledger and must Close it.
func openLedger(opts *RootOptions) (*config.Config, *ledger.SQLite, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load config", err)
	}

	l, err := ledger.OpenSQLite(cfg.LedgerPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open ledger", err)
	}
	return cfg, l, nil
}

// resolveOracle picks the oracle address from a flag override, falling
// back to the configured oracle.
func resolveOracle(cfg *config.Config, override string) (attest.Address, error) {
	if override != "" {
		addr, err := attest.ParseAddress(override)
		if err != nil {
			return attest.ZeroAddress, WrapExitError(ExitCommandError, "invalid --oracle", err)
		}
		return addr, nil
	}
	addr, err := cfg.OracleAddress()
	if err != nil {
		return attest.ZeroAddress, WrapExitError(ExitCommandError, "resolve oracle", err)
	}
	return addr, nil
}

func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
}
