package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/llmshell/internal/console"
	"github.com/stupiduntilnot/llmshell/internal/protocol"
)

var (
	runWorkdir      string
	runTimeout      time.Duration
	runSessionTitle string
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Simulate one command and exit with its exit code",
	Long: `Hands a single command line to the simulator model and prints the output
it invents. The process exit code mirrors the simulated exit code, so run
composes with && and || like a real command would.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runWorkdir, "workdir", "", "working directory the command pretends to run in")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "timeout the command pretends to honor")
	runCmd.Flags().StringVar(&runSessionTitle, "session-title", "", "title for the session record (default: the command line)")
}

func runRun(cmd *cobra.Command, args []string) error {
	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	sh, recorder, err := buildShell(database, console.NewStdin("llmshell> "))
	if err != nil {
		return err
	}
	defer recorder.Flush()

	title := runSessionTitle
	if title == "" {
		title = strings.Join(args, " ")
	}
	code, err := sh.RunOnce(title, protocol.CommandDescriptor{
		Cmd:     args,
		Workdir: runWorkdir,
		Timeout: runTimeout,
	})
	if err != nil {
		return err
	}
	exitCode = code
	return nil
}
