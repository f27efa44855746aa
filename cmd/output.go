package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/sentinai-cli/internal/config"
	"github.com/xkilldash9x/sentinai-cli/internal/reporting"
	"github.com/xkilldash9x/sentinai-cli/internal/reporting/format"
)

// writeReport renders envelope with the configured format to --output, or to
// the command's stdout.
func writeReport(cmd *cobra.Command, cfg config.Interface, opts *rootOptions, envelope *reporting.Envelope, logger *zap.Logger) error {
	f, err := format.Parse(cfg.Output().Format)
	if err != nil {
		return err
	}

	var reporter reporting.Reporter
	if opts.output == "" || opts.output == "stdout" {
		reporter = reporting.NewForWriter(f, reporting.NopCloser(cmd.OutOrStdout()), Version)
	} else {
		if reporter, err = reporting.New(string(f), opts.output, Version); err != nil {
			return fmt.Errorf("failed to initialize reporter: %w", err)
		}
	}

	if err := reporter.Write(envelope); err != nil {
		_ = reporter.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := reporter.Close(); err != nil {
		return fmt.Errorf("failed to finalize report: %w", err)
	}
	if opts.output != "" && opts.output != "stdout" {
		logger.Info("Report written", zap.String("path", opts.output), zap.String("format", string(f)))
	}
	return nil
}

// printStructured writes v as JSON or YAML when one of those formats is
// selected and falls back to the text renderer otherwise. Formats that only
// make sense for analysis results are treated as text.
func printStructured(cmd *cobra.Command, cfg config.Interface, v interface{}, text func(w io.Writer)) error {
	out := cmd.OutOrStdout()
	f, err := format.Parse(cfg.Output().Format)
	if err != nil {
		return err
	}

	switch f {
	case format.JSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case format.YAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		text(tw)
		return tw.Flush()
	}
}
