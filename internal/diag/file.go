package diag

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EnvSwitch is the environment variable gating all FileRecorder I/O.
// It is re-read on every call, so flipping it mid-process takes effect
// immediately.
const EnvSwitch = "LLMSHELL_DIAG"

const (
	categoryParseAttempt     = "parse_attempt"
	categoryCommandExecution = "command_execution"
	categoryOutputAnomalies  = "output_anomalies"
	categoryRawOutput        = "raw_output"
)

const (
	excerptLimit = 1000
	excerptEdge  = 500
)

// FileRecorder persists records as JSON files under a directory. Writes are
// fire-and-forget: the recording call returns before the file hits disk, and
// records in flight at process exit may be lost. Write failures are logged
// and swallowed. File names carry a millisecond timestamp only, so two
// records within the same tick can overwrite each other.
type FileRecorder struct {
	dir string
	log *zap.Logger
	wg  sync.WaitGroup
}

func NewFileRecorder(dir string, logger *zap.Logger) *FileRecorder {
	if dir == "" {
		dir = "diagnostics"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileRecorder{dir: dir, log: logger}
}

func (r *FileRecorder) enabled() bool {
	v := os.Getenv(EnvSwitch)
	return v == "1" || strings.EqualFold(v, "true")
}

type structuralSignature struct {
	OpenBraces    int `json:"open_braces"`
	CloseBraces   int `json:"close_braces"`
	OpenBrackets  int `json:"open_brackets"`
	CloseBrackets int `json:"close_brackets"`
	Quotes        int `json:"quotes"`
}

func signatureOf(s string) structuralSignature {
	return structuralSignature{
		OpenBraces:    strings.Count(s, "{"),
		CloseBraces:   strings.Count(s, "}"),
		OpenBrackets:  strings.Count(s, "["),
		CloseBrackets: strings.Count(s, "]"),
		Quotes:        strings.Count(s, `"`),
	}
}

type parseAttemptRecord struct {
	Timestamp        string              `json:"timestamp"`
	Stage            string              `json:"stage"`
	Success          bool                `json:"success"`
	InputSize        int                 `json:"input_size"`
	Signature        structuralSignature `json:"signature"`
	Error            string              `json:"error,omitempty"`
	Payload          string              `json:"payload"`
	PayloadExcerpted bool                `json:"payload_excerpted,omitempty"`
}

func (r *FileRecorder) ParseAttempt(stage, candidate string, success bool, decodeErr error) {
	if !r.enabled() {
		return
	}
	now := time.Now().UTC()
	rec := parseAttemptRecord{
		Timestamp: recordStamp(now),
		Stage:     stage,
		Success:   success,
		InputSize: len(candidate),
		Signature: signatureOf(candidate),
	}
	if decodeErr != nil {
		rec.Error = decodeErr.Error()
	}
	rec.Payload, rec.PayloadExcerpted = excerpt(candidate)
	r.writeJSON(categoryParseAttempt, now, rec)
}

type commandExecutionRecord struct {
	Timestamp       string  `json:"timestamp"`
	Command         string  `json:"command"`
	ExitCode        int     `json:"exit_code"`
	DurationSeconds float64 `json:"duration_seconds"`
	Output          string  `json:"output"`
	OutputExcerpted bool    `json:"output_excerpted,omitempty"`
}

func (r *FileRecorder) CommandExecution(command, output string, exitCode int, durationSeconds float64) {
	if !r.enabled() {
		return
	}
	now := time.Now().UTC()
	rec := commandExecutionRecord{
		Timestamp:       recordStamp(now),
		Command:         command,
		ExitCode:        exitCode,
		DurationSeconds: durationSeconds,
	}
	rec.Output, rec.OutputExcerpted = excerpt(output)
	r.writeJSON(categoryCommandExecution, now, rec)
}

type outputAnomaliesRecord struct {
	Timestamp       string   `json:"timestamp"`
	Name            string   `json:"name"`
	ArgsSize        int      `json:"args_size"`
	ArgsTokens      int      `json:"args_tokens"`
	OutputSize      int      `json:"output_size"`
	OutputTokens    int      `json:"output_tokens"`
	OpenBraces      int      `json:"open_braces"`
	CloseBraces     int      `json:"close_braces"`
	ControlChars    int      `json:"control_chars"`
	Imbalanced      bool     `json:"imbalanced"`
	Truncated       bool     `json:"truncated"`
	Issues          []string `json:"issues"`
	Output          string   `json:"output"`
	OutputExcerpted bool     `json:"output_excerpted,omitempty"`
}

// OutputAnomalies always writes the structured record; the verbatim raw
// output is persisted to a separate artifact only when at least one issue
// was found.
func (r *FileRecorder) OutputAnomalies(name, args, output string) {
	if !r.enabled() {
		return
	}
	now := time.Now().UTC()
	rep := analyzeOutput(args, output)
	rec := outputAnomaliesRecord{
		Timestamp:    recordStamp(now),
		Name:         name,
		ArgsSize:     rep.ArgsSize,
		ArgsTokens:   rep.ArgsTokens,
		OutputSize:   rep.OutputSize,
		OutputTokens: rep.OutputTokens,
		OpenBraces:   rep.OpenBraces,
		CloseBraces:  rep.CloseBraces,
		ControlChars: rep.ControlChars,
		Imbalanced:   rep.Imbalanced,
		Truncated:    rep.Truncated,
		Issues:       rep.Issues,
	}
	rec.Output, rec.OutputExcerpted = excerpt(output)
	r.writeJSON(categoryOutputAnomalies, now, rec)
	if len(rep.Issues) > 0 {
		r.write(fileName(categoryRawOutput, now, "txt"), []byte(output))
	}
}

// Flush blocks until every queued write has finished. The decode path never
// calls this; tests and process shutdown do.
func (r *FileRecorder) Flush() {
	r.wg.Wait()
}

func (r *FileRecorder) writeJSON(category string, now time.Time, rec any) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		r.log.Warn("diagnostic record marshal failed", zap.String("category", category), zap.Error(err))
		return
	}
	r.write(fileName(category, now, "json"), data)
}

func (r *FileRecorder) write(name string, data []byte) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := os.MkdirAll(r.dir, 0o755); err != nil {
			r.log.Warn("diagnostic write failed", zap.String("file", name), zap.Error(err))
			return
		}
		if err := os.WriteFile(filepath.Join(r.dir, name), data, 0o644); err != nil {
			r.log.Warn("diagnostic write failed", zap.String("file", name), zap.Error(err))
		}
	}()
}

// fileName builds "<category>_<timestamp>.<ext>" with the colons of the
// RFC 3339 timestamp replaced, since colons are invalid in path segments on
// some filesystems.
func fileName(category string, now time.Time, ext string) string {
	return category + "_" + strings.ReplaceAll(recordStamp(now), ":", "-") + "." + ext
}

func recordStamp(now time.Time) string {
	return now.Format("2006-01-02T15:04:05.000Z07:00")
}

// excerpt bounds a stored payload to its first and last excerptEdge
// characters. Rune-safe so multi-byte characters are never split.
func excerpt(s string) (string, bool) {
	runes := []rune(s)
	if len(runes) <= excerptLimit {
		return s, false
	}
	head := string(runes[:excerptEdge])
	tail := string(runes[len(runes)-excerptEdge:])
	return head + "\n...[excerpted]...\n" + tail, true
}
