package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stupiduntilnot/llmshell/internal/diag"
)

// ExecMetadata describes the outcome of a simulated command execution.
type ExecMetadata struct {
	ExitCode        int     `json:"exit_code"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// ToolResult is the structured result every simulator reply must carry.
type ToolResult struct {
	Output   string       `json:"output"`
	Metadata ExecMetadata `json:"metadata"`
}

// Annotations appended to the output of recovered replies.
const (
	notePatched   = "\n[Note: Response was truncated and automatically fixed]"
	noteExtracted = "\n[Note: Response was truncated but a valid portion was recovered]"
)

// Terminal messages when no recovery stage produced a result. Their presence
// in Output is the caller's only in-band signal that decoding failed.
const (
	fallbackTruncated = "Response appears to be truncated due to token limits. Try a smaller command output or check logs for details."
	fallbackGeneric   = "Failed to parse JSON result. Check logs for details."
)

// Decoder turns raw simulator replies into ToolResult values. Replies arrive
// as free-form text and are routinely cut off mid-object when the generation
// budget runs out, so decoding runs a staged recovery chain instead of a
// single parse. Each stage reports the candidate it examined to the
// diagnostic recorder.
//
// A Decoder holds no mutable state and is safe for concurrent use.
type Decoder struct {
	rec diag.Recorder
}

func NewDecoder(rec diag.Recorder) *Decoder {
	if rec == nil {
		rec = diag.Nop{}
	}
	return &Decoder{rec: rec}
}

type recoveryKind int

const (
	recoveryDirect recoveryKind = iota
	recoveryPatchedClose
	recoveryExtractedObject
	recoveryExhausted
)

// recoveryOutcome is the internal result of the stage chain. The annotation
// a recovered output carries is decided here in one place, not inside the
// stages.
type recoveryOutcome struct {
	kind   recoveryKind
	result ToolResult
}

// DecodeResult decodes a raw simulator reply. It is total: for any input,
// including empty strings and invalid UTF-8, it returns a usable ToolResult
// and never panics or reports an error.
func (d *Decoder) DecodeResult(raw string) ToolResult {
	out := d.runStages(raw)
	switch out.kind {
	case recoveryDirect:
		return out.result
	case recoveryPatchedClose:
		out.result.Output += notePatched
		return out.result
	case recoveryExtractedObject:
		out.result.Output += noteExtracted
		return out.result
	default:
		return fallbackResult(raw)
	}
}

func (d *Decoder) runStages(raw string) recoveryOutcome {
	// Stage 1: the reply is a complete result object.
	res, err := decodeStrict(raw)
	d.rec.ParseAttempt(diag.StageDirect, raw, err == nil, err)
	if err == nil {
		return recoveryOutcome{kind: recoveryDirect, result: res}
	}

	// Stage 2: more opens than closes means the outermost object never
	// closed; a single appended brace repairs the common one-level cut.
	if strings.Count(raw, "{") > strings.Count(raw, "}") {
		candidate := raw + "}"
		res, err = decodeStrict(candidate)
		d.rec.ParseAttempt(diag.StagePatchedClose, candidate, err == nil, err)
		if err == nil {
			return recoveryOutcome{kind: recoveryPatchedClose, result: res}
		}
	}

	// Stage 3: a complete object may be embedded in surrounding garbage.
	if candidate, ok := embeddedObject(raw); ok {
		res, err = decodeEmbedded(candidate)
		d.rec.ParseAttempt(diag.StageExtractedObject, candidate, err == nil, err)
		if err == nil {
			return recoveryOutcome{kind: recoveryExtractedObject, result: res}
		}
	}

	return recoveryOutcome{kind: recoveryExhausted}
}

type wireMetadata struct {
	ExitCode        *int     `json:"exit_code"`
	DurationSeconds *float64 `json:"duration_seconds"`
}

type wireResult struct {
	Output   *string       `json:"output"`
	Metadata *wireMetadata `json:"metadata"`
}

// decodeStrict accepts only a complete result object: output plus metadata
// with both of its fields present and correctly typed. Unknown extra fields
// are ignored.
func decodeStrict(raw string) (ToolResult, error) {
	var w wireResult
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return ToolResult{}, err
	}
	if w.Output == nil {
		return ToolResult{}, fmt.Errorf("missing field: output")
	}
	if w.Metadata == nil {
		return ToolResult{}, fmt.Errorf("missing field: metadata")
	}
	if w.Metadata.ExitCode == nil {
		return ToolResult{}, fmt.Errorf("missing field: metadata.exit_code")
	}
	if w.Metadata.DurationSeconds == nil {
		return ToolResult{}, fmt.Errorf("missing field: metadata.duration_seconds")
	}
	return ToolResult{
		Output: *w.Output,
		Metadata: ExecMetadata{
			ExitCode:        *w.Metadata.ExitCode,
			DurationSeconds: *w.Metadata.DurationSeconds,
		},
	}, nil
}

// decodeEmbedded is the shape check for extracted candidates: the output and
// metadata keys must exist, but missing metadata sub-fields are tolerated.
func decodeEmbedded(candidate string) (ToolResult, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		return ToolResult{}, err
	}
	if _, ok := probe["output"]; !ok {
		return ToolResult{}, fmt.Errorf("missing key: output")
	}
	if _, ok := probe["metadata"]; !ok {
		return ToolResult{}, fmt.Errorf("missing key: metadata")
	}
	var res ToolResult
	if err := json.Unmarshal([]byte(candidate), &res); err != nil {
		return ToolResult{}, err
	}
	return res, nil
}

// embeddedObject selects the earliest open brace whose depth returns to zero
// at or before the last close brace, and returns the substring from there
// through that last close brace. Depth counting is byte-wise and does not
// track string literals; the selection is part of the decoder's contract and
// must stay stable, because it decides which candidate malformed inputs
// recover to.
func embeddedObject(raw string) (string, bool) {
	firstOpen := strings.IndexByte(raw, '{')
	lastClose := strings.LastIndexByte(raw, '}')
	if firstOpen < 0 || lastClose <= firstOpen {
		return "", false
	}
	start := firstOpen
	for start >= 0 && start < lastClose {
		depth := 0
		for i := start; i <= lastClose; i++ {
			switch raw[i] {
			case '{':
				depth++
			case '}':
				depth--
			}
			if depth == 0 {
				return raw[start : lastClose+1], true
			}
		}
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return "", false
}

// fallbackResult is the terminal value when every stage is exhausted. It
// cannot fail.
func fallbackResult(raw string) ToolResult {
	msg := fallbackGeneric
	if looksTruncated(raw) {
		msg = fallbackTruncated
	}
	return ToolResult{
		Output:   msg,
		Metadata: ExecMetadata{ExitCode: 1, DurationSeconds: 0},
	}
}

// looksTruncated guesses whether an undecodable reply was cut off by a
// generation limit: it opened an object but does not end on a close brace.
func looksTruncated(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return false
	}
	return !strings.HasSuffix(trimmed, "}") && strings.Contains(trimmed, "{")
}
