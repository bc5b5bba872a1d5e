package dummy

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	ctxpkg "github.com/stupiduntilnot/llmshell/internal/context"
	modelpkg "github.com/stupiduntilnot/llmshell/internal/model"
)

// Scripts are comma-separated action lists:
//
//	ok           canned success reply
//	ok:<text>    reply with text verbatim
//	err:<class>  return an error mentioning the class
//	sleep:<ms>   delay, then a canned reply (providers) or an empty line (prompters)
//	msg:<text>   same as ok:<text>; kept for scripts that read better with it
//	msgb64:<b64> reply with the decoded text; lets scripts carry commas and JSON
//	eof          end of input (prompters only)
type action struct {
	kind string
	arg  string
}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		switch {
		case token == "ok":
			actions = append(actions, action{kind: "ok"})
		case token == "eof":
			actions = append(actions, action{kind: "eof"})
		case strings.HasPrefix(token, "ok:"):
			actions = append(actions, action{kind: "ok", arg: strings.TrimPrefix(token, "ok:")})
		case strings.HasPrefix(token, "err:"):
			actions = append(actions, action{kind: "err", arg: strings.TrimPrefix(token, "err:")})
		case strings.HasPrefix(token, "sleep:"):
			actions = append(actions, action{kind: "sleep", arg: strings.TrimPrefix(token, "sleep:")})
		case strings.HasPrefix(token, "msg:"):
			actions = append(actions, action{kind: "msg", arg: strings.TrimPrefix(token, "msg:")})
		case strings.HasPrefix(token, "msgb64:"):
			actions = append(actions, action{kind: "msgb64", arg: strings.TrimPrefix(token, "msgb64:")})
		default:
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

// next returns the following action; an exhausted script repeats its last
// action forever.
func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

// nextOnce returns the following action without repeating; the second value
// is false once the script is exhausted.
func (r *scriptRunner) nextOnce() (action, bool) {
	if r.index >= len(r.actions) {
		return action{}, false
	}
	a := r.actions[r.index]
	r.index++
	return a, true
}

// Provider is a deterministic scripted model backend for tests and offline
// demos. A model that keeps answering: the script's last action repeats.
type Provider struct {
	mu     sync.Mutex
	model  string
	script *scriptRunner
}

func NewProvider(model, script string) (*Provider, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Provider{model: model, script: runner}, nil
}

func (p *Provider) ChatCompletion(messages []ctxpkg.Message) (modelpkg.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a := p.script.next()
	switch a.kind {
	case "ok", "msg":
		return modelpkg.CompletionResponse{
			Content:      emptyAs(a.arg, "dummy-ok"),
			InputTokens:  1,
			OutputTokens: 1,
		}, nil
	case "err":
		return modelpkg.CompletionResponse{}, fmt.Errorf("dummy provider error class=%s", emptyAs(a.arg, "provider_api"))
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		if ms > 0 {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return modelpkg.CompletionResponse{
			Content:      "dummy-after-sleep",
			InputTokens:  1,
			OutputTokens: 1,
		}, nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return modelpkg.CompletionResponse{}, fmt.Errorf("dummy provider msgb64 decode failed: %w", err)
		}
		return modelpkg.CompletionResponse{
			Content:      string(raw),
			InputTokens:  1,
			OutputTokens: 1,
		}, nil
	default:
		return modelpkg.CompletionResponse{
			Content:      "dummy-ok",
			InputTokens:  1,
			OutputTokens: 1,
		}, nil
	}
}

// Prompter feeds scripted lines to the shell loop. Unlike Provider the
// script does not repeat: exhaustion reads as end of input, like a closed
// stdin.
type Prompter struct {
	mu     sync.Mutex
	script *scriptRunner
}

func NewPrompter(script string) (*Prompter, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Prompter{script: runner}, nil
}

func (p *Prompter) Prompt() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.script.nextOnce()
	if !ok {
		return "", io.EOF
	}
	switch a.kind {
	case "eof":
		return "", io.EOF
	case "err":
		return "", fmt.Errorf("dummy prompter error class=%s", emptyAs(a.arg, "input"))
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		if ms > 0 {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return "", nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return "", fmt.Errorf("dummy prompter msgb64 decode failed: %w", err)
		}
		return string(raw), nil
	default:
		return a.arg, nil
	}
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
