package shell

import (
	"database/sql"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stupiduntilnot/llmshell/internal/console"
	ctxpkg "github.com/stupiduntilnot/llmshell/internal/context"
	"github.com/stupiduntilnot/llmshell/internal/control"
	"github.com/stupiduntilnot/llmshell/internal/db"
	"github.com/stupiduntilnot/llmshell/internal/diag"
	"github.com/stupiduntilnot/llmshell/internal/model"
	"github.com/stupiduntilnot/llmshell/internal/protocol"
)

// errCircuitOpen marks a provider call refused by the open breaker. The
// run and event trail treat it like any other provider failure.
var errCircuitOpen = errors.New("provider circuit open")

// Options wires a Shell. DB, Prompter, Renderer, Planner and Simulator are
// required; everything else has a working default.
type Options struct {
	DB        *sql.DB
	Prompter  console.Prompter
	Renderer  *console.Renderer
	Planner   model.Provider
	Simulator model.Provider

	Recorder     diag.Recorder
	History      ctxpkg.Provider
	Compressor   ctxpkg.Compressor
	Assembler    ctxpkg.Assembler
	Limits       control.Limits
	Breaker      *control.CircuitBreaker
	HistoryLimit int
	Log          *zap.Logger
}

// Shell owns the turn loop: it reads lines, has the planner turn them into
// commands, has the simulator execute them, and keeps the session record.
type Shell struct {
	db           *sql.DB
	prompter     console.Prompter
	renderer     *console.Renderer
	planner      model.Provider
	simulator    model.Provider
	decoder      *protocol.Decoder
	recorder     diag.Recorder
	history      ctxpkg.Provider
	compressor   ctxpkg.Compressor
	assembler    ctxpkg.Assembler
	limits       control.Limits
	breaker      *control.CircuitBreaker
	historyLimit int
	log          *zap.Logger
}

func New(o Options) (*Shell, error) {
	if o.DB == nil {
		return nil, errors.New("shell: DB is required")
	}
	if o.Prompter == nil {
		return nil, errors.New("shell: Prompter is required")
	}
	if o.Renderer == nil {
		return nil, errors.New("shell: Renderer is required")
	}
	if o.Planner == nil || o.Simulator == nil {
		return nil, errors.New("shell: planner and simulator providers are required")
	}

	rec := o.Recorder
	if rec == nil {
		rec = diag.Nop{}
	}
	hist := o.History
	if hist == nil {
		hist = &ctxpkg.SQLiteProvider{DB: o.DB}
	}
	comp := o.Compressor
	if comp == nil {
		comp = &ctxpkg.SimpleCompressor{MaxMessages: 40}
	}
	asm := o.Assembler
	if asm == nil {
		asm = &ctxpkg.StandardAssembler{}
	}
	breaker := o.Breaker
	if breaker == nil {
		breaker = control.NewCircuitBreaker(3, 30*time.Second)
	}
	logger := o.Log
	if logger == nil {
		logger = zap.NewNop()
	}
	historyLimit := o.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 40
	}

	return &Shell{
		db:           o.DB,
		prompter:     o.Prompter,
		renderer:     o.Renderer,
		planner:      o.Planner,
		simulator:    o.Simulator,
		decoder:      protocol.NewDecoder(rec),
		recorder:     rec,
		history:      hist,
		compressor:   comp,
		assembler:    asm,
		limits:       o.Limits,
		breaker:      breaker,
		historyLimit: historyLimit,
		log:          logger,
	}, nil
}

// Chat runs the interactive loop against an existing session until the
// user leaves, input ends, or a session limit trips.
func (s *Shell) Chat(sessionID string) error {
	rootID, err := db.LogEvent(s.db, nil, db.EventSessionStarted, map[string]any{
		"session_id": sessionID,
	})
	if err != nil {
		s.log.Warn("session.started event not recorded", zap.Error(err))
	}
	s.log.Info("session started", zap.String("session_id", sessionID))

	turns := 0
	var usedTokens int64
	for {
		line, err := s.prompter.Prompt()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warn("input closed", zap.Error(err))
			}
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		if err := control.CheckTurnLimit(s.limits, turns); err != nil {
			s.renderer.Error("%v; ending session", err)
			break
		}
		turns++
		s.turn(sessionID, rootID, line, &usedTokens)
		if err := control.CheckTokenLimit(s.limits, usedTokens); err != nil {
			s.renderer.Error("%v; ending session", err)
			break
		}
	}

	if _, err := db.EndSession(s.db, sessionID); err != nil {
		s.log.Warn("end session failed", zap.Error(err))
	}
	if _, err := db.LogEvent(s.db, &rootID, db.EventSessionEnded, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	}); err != nil {
		s.log.Warn("session.ended event not recorded", zap.Error(err))
	}
	s.log.Info("session ended", zap.String("session_id", sessionID), zap.Int("turns", turns))
	return nil
}

// RunOnce simulates a single command in its own session and returns the
// simulated exit code.
func (s *Shell) RunOnce(title string, desc protocol.CommandDescriptor) (int, error) {
	if len(desc.Cmd) == 0 {
		return 1, errors.New("no command given")
	}
	sessionID, err := db.CreateSession(s.db, title)
	if err != nil {
		return 1, err
	}
	rootID, _ := db.LogEvent(s.db, nil, db.EventSessionStarted, map[string]any{
		"session_id": sessionID,
		"mode":       "run",
	})

	var usedTokens int64
	result, ok := s.simulate(sessionID, rootID, commandLine(desc), desc, &usedTokens)

	if _, err := db.EndSession(s.db, sessionID); err != nil {
		s.log.Warn("end session failed", zap.Error(err))
	}
	db.LogEvent(s.db, &rootID, db.EventSessionEnded, map[string]any{
		"session_id": sessionID,
	})
	if !ok {
		// The failure is already on screen; mirror it in the exit code.
		return 1, nil
	}
	return result.Metadata.ExitCode, nil
}

// turn handles one prompted line: the planner either answers in prose,
// rendered as-is, or with a command object that goes to the simulator.
func (s *Shell) turn(sessionID string, rootID int64, line string, usedTokens *int64) {
	turnID, _ := db.LogEvent(s.db, &rootID, db.EventTurnPrompted, map[string]any{
		"session_id": sessionID,
		"text":       truncate(line, 1000),
	})
	if err := db.AppendHistory(s.db, sessionID, "user", line); err != nil {
		s.log.Warn("append user history failed", zap.Error(err))
	}

	content, err := s.complete(s.planner, sessionID, plannerSystemPrompt, line, turnID, usedTokens)
	if err != nil {
		return
	}

	desc, ok := protocol.DecodeArguments(content)
	if !ok {
		// Prose replies are normal. An object that yields no descriptor is
		// a planner defect worth an event.
		if strings.HasPrefix(strings.TrimSpace(content), "{") {
			db.LogEvent(s.db, &turnID, db.EventCommandRejected, map[string]any{
				"content": truncate(content, 1000),
			})
		}
		s.renderer.Reply(content)
		if err := db.AppendHistory(s.db, sessionID, "assistant", boundForHistory(content)); err != nil {
			s.log.Warn("append assistant history failed", zap.Error(err))
		}
		return
	}

	s.simulate(sessionID, turnID, content, desc, usedTokens)
}

// simulate drives one command through the run lifecycle. plannerRaw is the
// text that produced the descriptor; the anomaly scan wants it verbatim.
func (s *Shell) simulate(sessionID string, parentID int64, plannerRaw string, desc protocol.CommandDescriptor, usedTokens *int64) (protocol.ToolResult, bool) {
	runID, err := db.InsertRun(s.db, sessionID, desc.Cmd, desc.Workdir, desc.Timeout.Milliseconds())
	if err != nil {
		s.log.Warn("insert run failed", zap.Error(err))
		s.renderer.Error("could not record the command: %v", err)
		return protocol.ToolResult{}, false
	}
	cmdLine := commandLine(desc)
	db.LogEvent(s.db, &parentID, db.EventCommandPlanned, map[string]any{
		"run_id":     runID,
		"command":    truncate(cmdLine, 500),
		"workdir":    desc.Workdir,
		"timeout_ms": desc.Timeout.Milliseconds(),
	})
	if _, err := db.TransitionRunStatus(s.db, runID, db.RunStatusPending, db.RunStatusSimulating, ""); err != nil {
		s.log.Warn("run transition failed", zap.String("run_id", runID), zap.Error(err))
	}

	content, err := s.complete(s.simulator, sessionID, simulatorSystemPrompt, simulatorRequest(desc), parentID, usedTokens)
	if err != nil {
		if _, terr := db.TransitionRunStatus(s.db, runID, db.RunStatusSimulating, db.RunStatusFailed, err.Error()); terr != nil {
			s.log.Warn("run transition failed", zap.String("run_id", runID), zap.Error(terr))
		}
		return protocol.ToolResult{}, false
	}

	s.recorder.OutputAnomalies("run_command", plannerRaw, content)
	result := s.decoder.DecodeResult(content)
	s.recorder.CommandExecution(cmdLine, result.Output, result.Metadata.ExitCode, result.Metadata.DurationSeconds)

	s.renderer.Result(result)
	if err := db.AppendHistory(s.db, sessionID, "assistant", boundForHistory(result.Output)); err != nil {
		s.log.Warn("append assistant history failed", zap.Error(err))
	}
	if _, err := db.CompleteRun(s.db, runID, result.Metadata.ExitCode, result.Metadata.DurationSeconds); err != nil {
		s.log.Warn("complete run failed", zap.String("run_id", runID), zap.Error(err))
	}
	db.LogEvent(s.db, &parentID, db.EventCommandSimulated, map[string]any{
		"run_id":           runID,
		"exit_code":        result.Metadata.ExitCode,
		"duration_seconds": result.Metadata.DurationSeconds,
	})
	return result, true
}

// complete runs one provider call with context assembly, breaker gating,
// error classification, and token accounting. On a non-nil error the user
// has already seen a rendered message.
func (s *Shell) complete(p model.Provider, sessionID, system, current string, parentID int64, usedTokens *int64) (string, error) {
	if !s.breaker.Allow(time.Now()) {
		s.renderer.Error("provider paused after repeated %s failures; retry within %s",
			s.breaker.OpenedClass(), s.breaker.Cooldown)
		return "", errCircuitOpen
	}

	history, err := s.history.GetHistory(sessionID, s.historyLimit)
	if err != nil {
		s.log.Warn("history read failed", zap.Error(err))
	}
	messages := s.assembler.Assemble(system, s.compressor.Compress(history), current)

	started := time.Now()
	resp, err := p.ChatCompletion(messages)
	if err != nil {
		class := classifyProviderError(err)
		wasOpen := s.breaker.State() == control.CircuitOpen
		s.breaker.RecordFailure(class, time.Now())
		db.LogEvent(s.db, &parentID, db.EventProviderError, map[string]any{
			"error":       truncate(err.Error(), 1000),
			"error_class": class,
		})
		if !wasOpen && s.breaker.State() == control.CircuitOpen {
			db.LogEvent(s.db, &parentID, db.EventBreakerOpen, map[string]any{
				"error_class":      class,
				"threshold":        s.breaker.Threshold,
				"cooldown_seconds": int(s.breaker.Cooldown.Seconds()),
			})
		}
		s.log.Warn("provider call failed", zap.String("class", class), zap.Error(err))
		s.renderer.Error("provider failure (%s): %v", class, err)
		return "", err
	}
	s.breaker.RecordSuccess()
	s.log.Debug("provider call completed",
		zap.Duration("latency", time.Since(started)),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens),
	)

	*usedTokens += int64(resp.InputTokens + resp.OutputTokens)
	if err := db.AddSessionTokens(s.db, sessionID, resp.InputTokens, resp.OutputTokens); err != nil {
		s.log.Warn("token accounting failed", zap.Error(err))
	}
	return strings.TrimSpace(resp.Content), nil
}
