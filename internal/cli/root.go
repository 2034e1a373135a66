// Package cli implements the command-line interface for distill.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kilnforge/distill/internal/applog"
	"github.com/kilnforge/distill/internal/config"
	"github.com/kilnforge/distill/internal/modelclient"
	"github.com/kilnforge/distill/internal/statestore"
	"github.com/kilnforge/distill/internal/taskcontroller"
)

var (
	// Version information set at build time.
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	cfg      config.Config
	secrets  config.Secrets
	logger   *zap.SugaredLogger
	ctrl     *taskcontroller.Controller
	states   statestore.Store
	registry *modelclient.Registry

	cfgFile     string
	secretsFile string
	verbose     bool
	quiet       bool
	logFile     string
)

var rootCmd = &cobra.Command{
	Use:   "distill",
	Short: "Concurrent, resumable LLM data distillation engine",
	Long: `distill drives a large teacher model over a dataset of input records,
fanning requests out across a rate-limited worker pool, retrying transient
failures with backoff, and writing ordered or unordered JSONL output with
durable checkpointing so a run can be paused, resumed, or recovered after
a crash without redoing finished work.

Example:
  distill start --input topics.jsonl --output dataset.jsonl --model gpt-4o-mini --strategy q_to_a`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return initAll()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: distill.yaml)")
	rootCmd.PersistentFlags().StringVar(&secretsFile, "secrets", "", "secrets file (default: .secrets.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all but warnings and errors")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write rotated logs to this file")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(validateCmd)
}

// initAll loads config/secrets, constructs the logger, and wires the
// Task Controller's process-scoped dependencies. It runs once per
// invocation via PersistentPreRunE, not at package init, so flag values
// are available.
func initAll() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	secrets, err = config.LoadSecrets(secretsFile)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err = applog.New(applog.Options{
		Verbose: verbose,
		Quiet:   quiet,
		LogFile: logFile,
	})
	if err != nil {
		return fmt.Errorf("failed to construct logger: %w", err)
	}

	registry = modelclient.NewRegistry()
	for _, m := range cfg.Models {
		mc, err := cfg.ModelConfigFor(m.ModelID, secrets)
		if err != nil {
			return err
		}
		registry.Configure(mc)
	}

	states, err = newStateStore(cfg.StateStore)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}

	ctrl = taskcontroller.New(registry, states, logger)
	return nil
}

func newStateStore(sc config.StateStoreConfig) (statestore.Store, error) {
	switch sc.Backend {
	case "redis":
		return statestore.NewRedisStore(statestore.RedisConfig{Addr: sc.RedisURL, KeyPrefix: "distill:task:"})
	default:
		dir := sc.Dir
		if dir == "" {
			dir = ".distill/state"
		}
		return statestore.NewFileStore(dir)
	}
}

// GetConfig returns the loaded configuration.
func GetConfig() config.Config { return cfg }

// GetRegistry returns the process-scoped model client registry.
func GetRegistry() *modelclient.Registry { return registry }

// IsVerbose reports whether verbose mode is enabled.
func IsVerbose() bool { return verbose }

// IsQuiet reports whether quiet mode is enabled.
func IsQuiet() bool { return quiet }

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
