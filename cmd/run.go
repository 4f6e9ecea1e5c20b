package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"refract.dev/pkg/refract/internal/domain"
	m "refract.dev/pkg/refract/internal/model"
)

var runParallelFlag int
var runToleranceFlag float64
var runThresholdFlag int
var runViewportFlag string
var runShardFlag string

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Render and compare fixtures",
		Long:  runLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			shardIndex, totalShards := parseShardFlag(runShardFlag)
			paths := parsePaths(args)

			viewport, err := m.ParseViewport(viper.GetString(viewportConfigKey))
			if err != nil {
				return err
			}

			threshold := viper.GetInt(thresholdConfigKey)
			if threshold < 0 || threshold > 255 {
				return fmt.Errorf("threshold %d out of range [0, 255]", threshold)
			}

			return workflow.Test(cmd.Context(), domain.TestArgs{
				Paths:           paths,
				Exclude:         viper.GetStringSlice(excludeConfigKey),
				Viewport:        viewport,
				Tolerance:       viper.GetFloat64(toleranceConfigKey),
				Threshold:       uint8(threshold),
				Timeout:         viper.GetDuration(timeoutConfigKey),
				Threads:         viper.GetInt(runParallelConfigKey),
				ShardIndex:      shardIndex,
				TotalShardCount: totalShards,
				Reports:         m.Path(viper.GetString(outputFlagName)),
			})
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&runParallelFlag, runParallelFlagName, "p", viper.GetInt(runParallelConfigKey), "number of parallel workers for rendering and comparison")
	bindFlagToConfig(cmd.Flags().Lookup(runParallelFlagName), runParallelConfigKey)

	cmd.Flags().Float64VarP(&runToleranceFlag, toleranceFlagName, "t", viper.GetFloat64(toleranceConfigKey), "mismatch-ratio ceiling for a passing case")
	bindFlagToConfig(cmd.Flags().Lookup(toleranceFlagName), toleranceConfigKey)

	cmd.Flags().IntVar(&runThresholdFlag, thresholdFlagName, viper.GetInt(thresholdConfigKey), "per-channel noise threshold (0-255)")
	bindFlagToConfig(cmd.Flags().Lookup(thresholdFlagName), thresholdConfigKey)

	cmd.Flags().StringVar(&runViewportFlag, viewportFlagName, viper.GetString(viewportConfigKey), "render viewport as WIDTHxHEIGHT")
	bindFlagToConfig(cmd.Flags().Lookup(viewportFlagName), viewportConfigKey)

	cmd.Flags().Duration(timeoutFlagName, defaultTimeout, "per-case render timeout")
	bindFlagToConfig(cmd.Flags().Lookup(timeoutFlagName), timeoutConfigKey)

	cmd.Flags().StringVarP(&runShardFlag, "shard", "s", "", "shard index and total shard count in the format INDEX/TOTAL (e.g., 0/3)")
}

func parseShardFlag(shard string) (int, int) {
	if shard == "" {
		return 0, 1
	}

	var index, total int

	_, err := fmt.Sscanf(shard, "%d/%d", &index, &total)
	if err != nil || total <= 0 || index < 0 || index >= total {
		return 0, 1
	}

	return index, total
}
