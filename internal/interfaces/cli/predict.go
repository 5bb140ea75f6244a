package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

func newPredictCmd(deps Dependencies, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Prediction job control",
		Long:  "Runs a scheduler cycle by hand or retriggers a terminally failed job.\nThe worker runs cycles continuously; manual cycles are for draining a\nqueue during maintenance.",
	}

	cmd.AddCommand(newPredictCycleCmd(deps, opts))
	cmd.AddCommand(newPredictRetriggerCmd(deps))
	return cmd
}

func newPredictCycleCmd(deps Dependencies, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one scheduler cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := deps.Prediction.RunCycle(cmd.Context())
			if err != nil {
				return err
			}
			if report.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "cycle skipped: another replica holds the cycle lock")
				return nil
			}
			return printResult(cmd, opts, report)
		},
	}
}

func newPredictRetriggerCmd(deps Dependencies) *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "retrigger",
		Short: "Create a fresh job for a terminally failed one",
		RunE: func(cmd *cobra.Command, args []string) error {
			freshID, err := deps.Prediction.Retrigger(cmd.Context(), common.ID(jobID))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created job %s\n", freshID)
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "job", "", "id of the failed job")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}
