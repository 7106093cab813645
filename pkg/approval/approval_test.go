package approval

import (
	"context"
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probemesh/probemesh/pkg/apperrors"
)

func TestGate_RequestApproval_Accepted(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, req Request) (*Decision, error) {
		assert.Equal(t, "Run network-ping?", req.PromptText)
		assert.Equal(t, "corr-1", req.CorrelationID)
		return &Decision{
			Outcome: OutcomeAccepted,
			Data:    map[string]any{"approved": true},
		}, nil
	})

	gate := NewGate(handler, logr.Discard())
	decision, err := gate.RequestApproval(context.Background(), "Run network-ping?", nil, "corr-1")
	require.NoError(t, err)
	assert.True(t, decision.Approved())
	assert.Equal(t, true, decision.Data["approved"])
}

func TestGate_RequestApproval_Declined(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, req Request) (*Decision, error) {
		return &Decision{Outcome: OutcomeDeclined}, nil
	})

	gate := NewGate(handler, logr.Discard())
	decision, err := gate.RequestApproval(context.Background(), "prompt", nil, "")
	require.NoError(t, err)
	assert.False(t, decision.Approved())
	assert.Equal(t, OutcomeDeclined, decision.Outcome)
}

func TestGate_RequestApproval_Cancelled(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, req Request) (*Decision, error) {
		return &Decision{Outcome: OutcomeCancelled}, nil
	})

	gate := NewGate(handler, logr.Discard())
	decision, err := gate.RequestApproval(context.Background(), "prompt", nil, "")
	require.NoError(t, err)
	assert.False(t, decision.Approved())
}

func TestGate_RequestApproval_TransportError(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, req Request) (*Decision, error) {
		return nil, errors.New("pipe closed")
	})

	gate := NewGate(handler, logr.Discard())
	decision, err := gate.RequestApproval(context.Background(), "prompt", nil, "")
	require.Error(t, err)
	assert.Nil(t, decision)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeApprovalTransport))
}

func TestGate_RequestApproval_NilDecision(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, req Request) (*Decision, error) {
		return nil, nil
	})

	gate := NewGate(handler, logr.Discard())
	_, err := gate.RequestApproval(context.Background(), "prompt", nil, "")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeApprovalTransport))
}

func TestGate_RequestApproval_NoHandler(t *testing.T) {
	gate := NewGate(nil, logr.Discard())
	_, err := gate.RequestApproval(context.Background(), "prompt", nil, "")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeApprovalTransport))
}

func TestDecision_Approved_NilReceiver(t *testing.T) {
	var decision *Decision
	assert.False(t, decision.Approved())
}
