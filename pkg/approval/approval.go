// Package approval implements the human-in-the-loop confirmation step that
// gates tool execution. The gate itself is a protocol, not a store: each
// request produces exactly one decision, supplied by an injected Handler
// (typically the interactive console). Handler failures fail closed.
package approval

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/probemesh/probemesh/pkg/apperrors"
)

// Outcome is the kind of decision a human produced for a request.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accept"
	OutcomeDeclined  Outcome = "decline"
	OutcomeCancelled Outcome = "cancel"
)

// Request describes one pending confirmation. It exists only for the
// duration of the human decision.
type Request struct {
	PromptText    string
	Schema        map[string]any
	CorrelationID string
}

// Decision is the human's answer to a Request. Data is only populated for
// accepted decisions and is expected, not validated, to conform to the
// request schema; callers should rely on the "approved" boolean convention
// and nothing more.
type Decision struct {
	Outcome Outcome
	Data    map[string]any
}

// Approved reports whether the decision allows execution to proceed.
func (d *Decision) Approved() bool {
	return d != nil && d.Outcome == OutcomeAccepted
}

// Handler produces decisions for approval requests. Implementations block
// until the human answers; they never mutate session state.
type Handler interface {
	Elicit(ctx context.Context, req Request) (*Decision, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req Request) (*Decision, error)

func (f HandlerFunc) Elicit(ctx context.Context, req Request) (*Decision, error) {
	return f(ctx, req)
}

// Gate pauses tool calls pending a human decision.
type Gate struct {
	handler Handler
	logger  logr.Logger
}

// NewGate creates a Gate backed by the given handler.
func NewGate(handler Handler, logger logr.Logger) *Gate {
	return &Gate{handler: handler, logger: logger}
}

// RequestApproval presents the prompt to the handler and waits for the
// decision. Any handler or transport failure is returned as an
// APPROVAL_TRANSPORT error; callers treat that the same as a decline.
func (g *Gate) RequestApproval(ctx context.Context, promptText string, schema map[string]any, correlationID string) (*Decision, error) {
	if g.handler == nil {
		return nil, apperrors.New(apperrors.ErrCodeApprovalTransport, "no approval handler configured", nil)
	}

	decision, err := g.handler.Elicit(ctx, Request{
		PromptText:    promptText,
		Schema:        schema,
		CorrelationID: correlationID,
	})
	if err != nil {
		g.logger.Error(err, "approval handler failed, treating as declined")
		return nil, apperrors.New(apperrors.ErrCodeApprovalTransport, "awaiting approval decision", err)
	}
	if decision == nil {
		return nil, apperrors.New(apperrors.ErrCodeApprovalTransport, "approval handler returned no decision", nil)
	}

	g.logger.V(1).Info("approval decision received", "outcome", decision.Outcome)
	return decision, nil
}
