package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"refract.dev/pkg/refract/internal/domain"
	m "refract.dev/pkg/refract/internal/model"
)

var viewFormatFlag string
var viewCompareFlag string

// viewCmd represents the view command.
var viewCmd = newViewCmd()

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "View a previously generated report",
		Long: `View the report in the reports directory, as a table or as YAML,
or diff it against the report of another run with --compare.`,
		Args: cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return workflow.View(cmd.Context(), domain.ViewArgs{
				Reports:   m.Path(viper.GetString(outputFlagName)),
				Format:    viper.GetString(formatConfigKey),
				CompareTo: m.Path(viewCompareFlag),
			})
		},
	}

	cmd.Flags().StringVarP(&viewFormatFlag, formatFlagName, "f", viper.GetString(formatConfigKey), "output format: table or yaml")
	bindFlagToConfig(cmd.Flags().Lookup(formatFlagName), formatConfigKey)

	cmd.Flags().StringVar(&viewCompareFlag, "compare", "", "reports directory of another run to diff against")

	return cmd
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
