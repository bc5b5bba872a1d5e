package protocol

import (
	"encoding/json"
	"time"
)

// CommandDescriptor is a planned command: the argv to run, and optionally a
// working directory and a timeout. Zero values for Workdir and Timeout mean
// the field was absent.
type CommandDescriptor struct {
	Cmd     []string
	Workdir string
	Timeout time.Duration
}

// DecodeArguments decodes a planner reply into a command descriptor. The
// argv is taken from the "cmd" key, or from "command" when "cmd" is missing
// or not an array of strings. There is no recovery chain here: a reply that
// does not parse, or that yields an empty argv, reports false.
func DecodeArguments(raw string) (CommandDescriptor, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return CommandDescriptor{}, false
	}

	cmd := stringSlice(fields["cmd"])
	if len(cmd) == 0 {
		cmd = stringSlice(fields["command"])
	}
	if len(cmd) == 0 {
		return CommandDescriptor{}, false
	}

	desc := CommandDescriptor{Cmd: cmd}
	if v, ok := fields["workdir"]; ok {
		var dir string
		if err := json.Unmarshal(v, &dir); err == nil {
			desc.Workdir = dir
		}
	}
	if v, ok := fields["timeout"]; ok {
		var ms float64
		if err := json.Unmarshal(v, &ms); err == nil && ms > 0 {
			desc.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	return desc, true
}

// stringSlice decodes a raw value as a non-empty array of strings, or nil.
// String-typed commands are never split into words; they read as absent.
func stringSlice(v json.RawMessage) []string {
	if v == nil {
		return nil
	}
	var out []string
	if err := json.Unmarshal(v, &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
