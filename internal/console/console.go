package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Prompter yields one line of user input per call. io.EOF ends the session.
type Prompter interface {
	Prompt() (string, error)
}

// Stdin prints the prompt string and reads lines from standard input.
type Stdin struct {
	prompt  string
	out     io.Writer
	scanner *bufio.Scanner
}

func NewStdin(prompt string) *Stdin {
	return NewStdinFrom(prompt, os.Stdin, os.Stdout)
}

// NewStdinFrom exists for tests that drive the prompter from a buffer.
func NewStdinFrom(prompt string, in io.Reader, out io.Writer) *Stdin {
	sc := bufio.NewScanner(in)
	// Pasted command output can exceed the scanner's default line limit.
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Stdin{prompt: prompt, out: out, scanner: sc}
}

func (s *Stdin) Prompt() (string, error) {
	fmt.Fprint(s.out, s.prompt)
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}
