package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stupiduntilnot/llmshell/internal/console"
	"github.com/stupiduntilnot/llmshell/internal/db"
)

var resumeSession bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Reads one request per line. The planner model answers in prose or plans
a command; planned commands go to the simulator model and their output is
printed. "exit", "quit" or end of input closes the session.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&resumeSession, "resume", false, "continue the most recent session that was never closed")
}

func runChat(cmd *cobra.Command, args []string) error {
	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	// Runs left behind by a killed process would otherwise sit in
	// pending/simulating forever.
	if n, err := db.CleanupStaleRuns(database); err != nil {
		logger.Warn("stale run cleanup failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("stale runs marked failed", zap.Int64("count", n))
	}

	var sessionID string
	if resumeSession {
		sessionID, err = db.LatestOpenSessionID(database)
		if err != nil {
			return fmt.Errorf("find open session: %w", err)
		}
	}
	if sessionID == "" {
		sessionID, err = db.CreateSession(database, "")
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
	}

	sh, recorder, err := buildShell(database, console.NewStdin("llmshell> "))
	if err != nil {
		return err
	}
	defer recorder.Flush()

	return sh.Chat(sessionID)
}
