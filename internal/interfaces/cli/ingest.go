package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/ingestion"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	mtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
)

// ingestReport wraps the batch report with table rendering for the text
// output format.
type ingestReport struct {
	*mtypes.BatchReportDTO
}

func (r ingestReport) TableHeaders() []string {
	return []string{"ROW", "OUTCOME", "DETAIL"}
}

func (r ingestReport) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Accepted)+len(r.Rejected))
	for _, a := range r.Accepted {
		outcome := "accepted"
		if a.Existing {
			outcome = "existing"
		}
		rows = append(rows, []string{fmt.Sprintf("%d", a.Row), outcome, string(a.MoleculeID)})
	}
	for _, e := range r.Rejected {
		rows = append(rows, []string{fmt.Sprintf("%d", e.Row), "rejected", e.Code + ": " + e.Message})
	}
	return rows
}

func newIngestCmd(deps Dependencies, opts *rootOptions) *cobra.Command {
	var (
		filePath string
		userID   string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Upload a CSV batch of molecule structures",
		Long:  "Reads a CSV file with a structure column (plus an optional format\ncolumn), validates and deduplicates the rows, persists accepted\nmolecules, and queues them for property prediction.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(filePath)
			if err != nil {
				return fmt.Errorf("open %s: %w", filePath, err)
			}
			defer f.Close()

			report, err := deps.Ingestion.Ingest(cmd.Context(), ingestion.NewCSVSource(f), common.UserID(userID))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "rows: %d  accepted: %d  rejected: %d\n",
				report.TotalRows, len(report.Accepted), len(report.Rejected))
			return printResult(cmd, opts, ingestReport{report})
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "CSV file to upload")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "acting user id")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
