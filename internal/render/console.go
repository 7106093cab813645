// Package render is the terminal face of a session: it prints stream
// events and notices, and collects interactive approval decisions.
package render

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/probemesh/probemesh/pkg/approval"
)

// Console renders orchestrator output and prompts for approvals on a
// terminal. It implements both the approval handler and the event renderer.
type Console struct {
	in  *bufio.Reader
	out io.Writer

	prompt  *color.Color
	command *color.Color
	success *color.Color
	failure *color.Color
	notice  *color.Color
	faint   *color.Color
}

// NewConsole creates a Console over the given streams, typically stdin and
// stdout.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{
		in:      bufio.NewReader(in),
		out:     out,
		prompt:  color.New(color.FgMagenta, color.Bold),
		command: color.New(color.FgCyan),
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		notice:  color.New(color.FgYellow),
		faint:   color.New(color.Faint),
	}
}

// ReadLine prints the prompt and reads one trimmed line of user input.
// The Console owns the input buffer, so interactive loops and approval
// prompts must both go through it rather than reading the stream directly.
func (c *Console) ReadLine(prompt string) (string, error) {
	c.prompt.Fprint(c.out, prompt)
	line, err := c.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Elicit presents the approval prompt and reads a yes/no answer. An
// unreadable answer (EOF, closed terminal) is a cancellation, not an error:
// the gate must fail closed without aborting the session.
func (c *Console) Elicit(ctx context.Context, req approval.Request) (*approval.Decision, error) {
	c.prompt.Fprintln(c.out, "Approval required")
	fmt.Fprintln(c.out, req.PromptText)

	type answer struct {
		text string
		err  error
	}
	answers := make(chan answer, 1)
	go func() {
		for {
			c.prompt.Fprint(c.out, "Run this command? [y/N] ")
			line, err := c.in.ReadString('\n')
			if err != nil {
				answers <- answer{err: err}
				return
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				answers <- answer{text: "y"}
				return
			case "n", "no", "":
				answers <- answer{text: "n"}
				return
			default:
				fmt.Fprintln(c.out, "Please answer y or n.")
			}
		}
	}()

	select {
	case <-ctx.Done():
		return &approval.Decision{Outcome: approval.OutcomeCancelled}, nil
	case a := <-answers:
		if a.err != nil {
			return &approval.Decision{Outcome: approval.OutcomeCancelled}, nil
		}
		if a.text == "y" {
			return &approval.Decision{
				Outcome: approval.OutcomeAccepted,
				Data:    map[string]any{"approved": true},
			}, nil
		}
		return &approval.Decision{Outcome: approval.OutcomeDeclined}, nil
	}
}

// RenderEvent prints one stream event or orchestrator notice. Unknown kinds
// are shown faintly rather than dropped, so new provider event types stay
// visible.
func (c *Console) RenderEvent(kind string, payload map[string]any) {
	switch {
	case kind == "notice":
		c.notice.Fprintln(c.out, str(payload, "text"))
	case kind == "connected":
		c.faint.Fprintln(c.out, "stream connected")
	case strings.HasSuffix(kind, "_start"):
		c.command.Fprintf(c.out, "$ %s\n", str(payload, "command"))
	case strings.HasSuffix(kind, "_output"):
		fmt.Fprintln(c.out, str(payload, "output"))
	case strings.HasSuffix(kind, "_complete"):
		c.success.Fprintln(c.out, "done")
	case strings.HasSuffix(kind, "_error"):
		c.failure.Fprintf(c.out, "failed: %s\n", str(payload, "error"))
	case strings.HasSuffix(kind, "_cancelled"):
		c.notice.Fprintln(c.out, "cancelled")
	default:
		c.faint.Fprintf(c.out, "[%s]\n", kind)
	}
}

func str(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	value, _ := payload[key].(string)
	return value
}
