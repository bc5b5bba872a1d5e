package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stupiduntilnot/llmshell/internal/config"
)

var (
	verbose    bool
	configPath string

	cfg    config.Config
	logger *zap.Logger

	// exitCode is what main exits with when Execute itself succeeds. The
	// run command mirrors the simulated exit code through it.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "llmshell",
	Short: "A shell whose computer is a language model",
	Long: `llmshell looks like a shell, but no process is ever spawned. A planner
model turns each request into a command line, and a simulator model invents
the output that command would have produced.

Run without arguments to start an interactive session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <config-dir>/config.yaml)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(modelsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
