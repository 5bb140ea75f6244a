package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// statusReport combines the prediction queue and submission counters.
type statusReport struct {
	Queue       map[string]int64 `json:"queue"`
	Submissions map[string]int64 `json:"submissions"`
}

func (r statusReport) TableHeaders() []string {
	return []string{"KIND", "STATE", "COUNT"}
}

func (r statusReport) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Queue)+len(r.Submissions))
	for _, state := range sortedKeys(r.Queue) {
		rows = append(rows, []string{"job", state, fmt.Sprintf("%d", r.Queue[state])})
	}
	for _, status := range sortedKeys(r.Submissions) {
		rows = append(rows, []string{"submission", status, fmt.Sprintf("%d", r.Submissions[status])})
	}
	return rows
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newStatusCmd(deps Dependencies, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show prediction queue depths and submission counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			depths, err := deps.Prediction.QueueDepths(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := deps.Submissions.StatusCounts(cmd.Context())
			if err != nil {
				return err
			}

			report := statusReport{
				Queue:       make(map[string]int64, len(depths)),
				Submissions: make(map[string]int64, len(counts)),
			}
			for state, n := range depths {
				report.Queue[string(state)] = n
			}
			for status, n := range counts {
				report.Submissions[string(status)] = n
			}
			return printResult(cmd, opts, report)
		},
	}
}
