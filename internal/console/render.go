package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/stupiduntilnot/llmshell/internal/protocol"
)

// Renderer writes shell output as plain text. No styling: output may be
// piped or captured by tests.
type Renderer struct {
	w io.Writer
}

func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// Result prints the simulated output terminated by exactly one newline,
// then a status line. The status line is omitted for a clean instant exit,
// which keeps no-op commands quiet.
func (r *Renderer) Result(res protocol.ToolResult) {
	out := strings.TrimRight(res.Output, "\n")
	if out != "" {
		fmt.Fprintln(r.w, out)
	}
	code := res.Metadata.ExitCode
	dur := res.Metadata.DurationSeconds
	if code == 0 && dur < 0.01 {
		return
	}
	fmt.Fprintf(r.w, "[exit %d in %.2fs]\n", code, dur)
}

// Reply prints a plain model reply.
func (r *Renderer) Reply(text string) {
	fmt.Fprintln(r.w, strings.TrimRight(text, "\n"))
}

// Error prints a user-facing error line.
func (r *Renderer) Error(format string, args ...any) {
	fmt.Fprintf(r.w, "error: "+format+"\n", args...)
}
