// Package cli implements the operator command line: batch ingestion,
// prediction cycle control, and pipeline status inspection.
package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/ingestion"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/prediction"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/submission"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Dependencies aggregates the application services the commands run on.
type Dependencies struct {
	Ingestion   ingestion.Service
	Prediction  prediction.Service
	Submissions submission.Service
	Logger      logging.Logger
}

// rootOptions holds the global flags shared by every command.
type rootOptions struct {
	outputFormat string
}

// NewRootCommand creates the root command and mounts the subcommands over
// deps.
func NewRootCommand(deps Dependencies) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     "cromkt",
		Short:   "Operator tooling for the molecule ingestion and CRO submission pipeline",
		Long:    "cromkt drives the molecule batch ingestion, property prediction, and\nCRO submission pipeline from the command line: upload structure batches,\nrun or retrigger prediction work, and inspect queue and submission state.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.outputFormat, "output", "o", "text", "output format (text, json)")

	cmd.AddCommand(
		newIngestCmd(deps, opts),
		newPredictCmd(deps, opts),
		newStatusCmd(deps, opts),
	)
	return cmd
}

// printResult writes data to the command's stdout in the selected format.
func printResult(cmd *cobra.Command, opts *rootOptions, data interface{}) error {
	if strings.EqualFold(opts.outputFormat, "json") {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	type tableProvider interface {
		TableHeaders() []string
		TableRows() [][]string
	}
	if tp, ok := data.(tableProvider); ok {
		fmt.Fprint(cmd.OutOrStdout(), formatTable(tp.TableHeaders(), tp.TableRows()))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", data)
	return nil
}

// formatTable renders headers and rows as an aligned ASCII table.
func formatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if len(row[i]) > widths[i] {
				widths[i] = len(row[i])
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i := 0; i < len(headers); i++ {
			if i > 0 {
				sb.WriteString("  ")
			}
			val := ""
			if i < len(cells) {
				val = cells[i]
			}
			sb.WriteString(padRight(val, widths[i]))
		}
		sb.WriteString("\n")
	}

	writeRow(headers)
	sep := make([]string, len(headers))
	for i, w := range widths {
		sep[i] = strings.Repeat("-", w)
	}
	writeRow(sep)
	for _, row := range rows {
		writeRow(row)
	}
	return sb.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
