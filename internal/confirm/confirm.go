// Package confirm provides the yes/no gates that stand between a built plan
// and its execution.
package confirm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const reasonNoTerminal = "stdin is not a terminal, pass --yes to apply"

// Prompt asks on out and reads the answer from in. The default answer is no.
type Prompt struct {
	reader      *bufio.Reader
	out         io.Writer
	interactive bool
}

// New prompts on stdout when stdin is a terminal, and declines otherwise.
func New() *Prompt {
	return NewPrompt(os.Stdin, os.Stdout, term.IsTerminal(int(os.Stdin.Fd())))
}

func NewPrompt(in io.Reader, out io.Writer, interactive bool) *Prompt {
	return &Prompt{reader: bufio.NewReader(in), out: out, interactive: interactive}
}

func (p *Prompt) Confirm(ctx context.Context, message string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !p.interactive {
		return false, nil
	}

	fmt.Fprintf(p.out, "%s (y/N): ", message)
	response, err := p.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read answer: %w", err)
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}

func (p *Prompt) DeclineReason() string {
	if !p.interactive {
		return reasonNoTerminal
	}
	return "declined"
}

// Always approves every plan without asking.
type Always struct{}

func (Always) Confirm(ctx context.Context, message string) (bool, error) {
	return ctx.Err() == nil, ctx.Err()
}

// Never declines every plan without asking.
type Never struct {
	Reason string
}

func (Never) Confirm(ctx context.Context, message string) (bool, error) {
	return false, nil
}

func (n Never) DeclineReason() string {
	if n.Reason == "" {
		return "declined"
	}
	return n.Reason
}
