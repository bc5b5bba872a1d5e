package diag

// Stage labels attached to parse attempt records.
const (
	StageDirect          = "direct"
	StagePatchedClose    = "patched_close"
	StageExtractedObject = "extracted_object"
)

// Recorder captures decode telemetry. Implementations are write-only side
// channels: entry points never block the caller on I/O and never return
// errors, so a failing recorder cannot change a decode result.
type Recorder interface {
	// ParseAttempt records one stage of the result recovery chain together
	// with the exact candidate text the stage examined.
	ParseAttempt(stage, candidate string, success bool, decodeErr error)
	// CommandExecution records a simulated command and its decoded outcome.
	CommandExecution(command, output string, exitCode int, durationSeconds float64)
	// OutputAnomalies inspects a raw model reply for structural problems and
	// records the findings.
	OutputAnomalies(name, args, output string)
}

// Nop discards all records.
type Nop struct{}

func (Nop) ParseAttempt(stage, candidate string, success bool, decodeErr error)            {}
func (Nop) CommandExecution(command, output string, exitCode int, durationSeconds float64) {}
func (Nop) OutputAnomalies(name, args, output string)                                      {}
