// Package cmd provides the root command and CLI setup for refract.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"refract.dev/pkg/refract/internal/adapter"
	"refract.dev/pkg/refract/internal/controller"
	"refract.dev/pkg/refract/internal/domain"
	m "refract.dev/pkg/refract/internal/model"
)

var fsAdapter adapter.FixtureFSAdapter
var reportStore adapter.ReportStore
var loader domain.Loader
var ui controller.UI
var workflow domain.Workflow

// reportsOutputDirFlag is a root-level flag shared by commands that read/write reports.
var reportsOutputDirFlag string

// excludePatterns is a root-level flag that filters fixture files for applicable commands.
var excludePatterns []string

// verboseFlag switches file logging to debug level.
var verboseFlag bool

// logFileFlag overrides the log file location.
var logFileFlag string

func init() {
	configureRootFlags(rootCmd)

	// Initialize shared dependencies.
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	fsAdapter = adapter.NewLocalFixtureFSAdapter()
	reportStore = adapter.NewReportStore()
	loader = domain.NewLoader(fsAdapter)
	workflow = domain.NewWorkflow(
		loader,
		fsAdapter,
		reportStore,
		ui,
		func(ctx context.Context) (adapter.Renderer, func()) {
			renderer := adapter.NewChromeRenderer(ctx, fsAdapter)
			return renderer, renderer.Close
		},
	)
}

const pathPatternsHelp = `Supports Go-style path patterns:
  - ./...           recursively scan current directory
  - ./tests/...     recursively scan tests directory
  - ./a ./b         scan multiple directories`

const rootLongDescription = `Refract is a visual regression harness. It discovers reftest fixtures
(test documents declaring a match or mismatch link to a reference document),
rasterizes both through a headless browser, and compares the pixel buffers
within a configurable tolerance.

` + pathPatternsHelp

const runLongDescription = `Render and compare the fixtures found under the given paths
(default: current directory). Exit code is 0 only when every case passes.

` + pathPatternsHelp

const listLongDescription = `List discovered fixture pairs and their metadata without rendering.

` + pathPatternsHelp

// rootCmd represents the base command when called without any subcommands.
var rootCmd = baseRootCmd()

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refract",
		Short: "Visual regression test harness",
		Long:  rootLongDescription,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(logFileFlag, verboseFlag)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&reportsOutputDirFlag, outputFlagName, "o",
			viper.GetString(outputFlagName),
			"output directory for reports and diff artifacts",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().StringArrayVarP(&excludePatterns, excludeFlagName, "x", viper.GetStringSlice(excludeConfigKey), "exclude fixtures matching regex (can be repeated)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(excludeFlagName), excludeConfigKey)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", false, "log at debug level")
	cmd.PersistentFlags().StringVar(&logFileFlag, logFileFlagName, "", "log file path (default "+defaultLogFilename+")")
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func parsePaths(args []string) []m.Path {
	paths := make([]m.Path, 0, len(args))
	for _, arg := range args {
		paths = append(paths, m.Path(arg))
	}

	return paths
}
