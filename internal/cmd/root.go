// Package cmd implements the trainjob command line.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/3leaps/trainjob/internal/config"
	"github.com/3leaps/trainjob/internal/observability"
)

const appName = "trainjob"

var (
	configFile      string
	envFile         string
	libraryRootFlag string
	jobsRootFlag    string
	verbose         bool
)

var rootCmd = &cobra.Command{
	Use:   "trainjob <detector|classifier> -c <train|recall|report> [flags]",
	Short: "Stage and run trainer jobs",
	Long: `Stage and run training jobs for an external trainer binary.

A new job (no --id) copies the trainer library into a fresh job folder,
stages the data and network configs into it and persists the job state.
Passing --id resumes an existing job from its saved state.

Settings are read from trainjob.yaml (or --config), TRAINJOB_* environment
variables and flags. library_root and jobs_root are required.

Examples:
  # New detector job; relative paths resolve against the library root
  trainjob detector -c train -d cfg/voc.data -n cfg/yolov3.cfg -w darknet53.conv.74

  # Resume a job from its latest checkpoint
  trainjob detector -c train -i 20261018120000007`,
	Args:              validateKindArg,
	ValidArgs:         []string{"detector", "classifier"},
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initLogging,
	RunE:              runJob,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Settings file (default: ./trainjob.yaml or $XDG_CONFIG_HOME/trainjob/trainjob.yaml)")
	pf.StringVar(&envFile, "env-file", "", "Load environment variables from a dotenv file")
	pf.StringVar(&libraryRootFlag, "library-root", "", "Trainer library root (overrides library_root)")
	pf.StringVar(&jobsRootFlag, "jobs-root", "", "Jobs root (overrides jobs_root)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.SetGlobalNormalizationFunc(underscoreToDash)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return exitError(codeInvalidArgument, "Invalid flags", fmt.Errorf("%w (see %s --help)", err, appName))
	})
}

// underscoreToDash accepts legacy --data_cfg style spellings.
func underscoreToDash(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func validateKindArg(cmd *cobra.Command, args []string) error {
	if err := cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs)(cmd, args); err != nil {
		return exitError(codeInvalidArgument, "Program kind is required",
			fmt.Errorf("%w: usage: %s", err, cmd.UseLine()))
	}
	return nil
}

func initLogging(_ *cobra.Command, _ []string) error {
	observability.InitCLILogger(appName, verbose)
	return nil
}

// loadConfig resolves settings once per invocation from file, environment and
// the persistent flags.
func loadConfig() (*config.Config, error) {
	overrides := map[string]any{}
	if v := strings.TrimSpace(libraryRootFlag); v != "" {
		overrides["library_root"] = v
	}
	if v := strings.TrimSpace(jobsRootFlag); v != "" {
		overrides["jobs_root"] = v
	}

	cfg, err := config.Load(config.Options{
		ConfigFile: configFile,
		EnvFile:    envFile,
		Overrides:  overrides,
	})
	if err != nil {
		return nil, exitError(codeInvalidArgument, "Invalid settings", err)
	}

	if !verbose {
		if err := observability.SetLevel(appName, cfg.Logging.Level); err != nil {
			observability.CLILogger.Warn("Ignoring logging.level", zap.Error(err))
		}
	}
	observability.CLILogger.Debug("Settings resolved",
		zap.String("library_root", cfg.LibraryRoot),
		zap.String("jobs_root", cfg.JobsRoot))
	return cfg, nil
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	observability.InitCLILogger(appName, false)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return report(observability.CLILogger, err)
	}
	return 0
}
