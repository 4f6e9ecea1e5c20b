package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"refract.dev/pkg/refract/internal/domain"
	m "refract.dev/pkg/refract/internal/model"
)

// mergeCmd represents the merge command.
var mergeCmd = newMergeCmd()

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge sharded reports into a single report",
		Long:  "Merge reports from shard_* subdirectories into a single report in the reports directory.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return workflow.Merge(cmd.Context(), domain.MergeArgs{
				Reports: m.Path(viper.GetString(outputFlagName)),
			})
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
