package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/probemesh/probemesh/pkg/apperrors"
)

const handshakeTimeout = 10 * time.Second

// SSETransport subscribes to diagnostic progress events over Server-Sent
// Events. One logical channel per correlation id: GET <base>/events/<id>,
// UTF-8 text frames, one JSON event object per data line.
type SSETransport struct {
	baseURL string
	client  *http.Client
	logger  logr.Logger
}

// NewSSETransport creates a transport rooted at baseURL (for example
// "http://127.0.0.1:7878").
func NewSSETransport(baseURL string, logger logr.Logger) *SSETransport {
	return &SSETransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: the response body is a long-lived stream.
		client: &http.Client{},
		logger: logger,
	}
}

// Open subscribes to the event channel for the id. It blocks until the
// server confirms the subscription with a "connected" event, then pumps
// subsequent events through deliver from a goroutine until detached or the
// server closes the stream.
func (t *SSETransport) Open(ctx context.Context, correlationID string, deliver func(Event)) (func(), error) {
	url := fmt.Sprintf("%s/events/%s", t.baseURL, correlationID)

	streamCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, apperrors.New(apperrors.ErrCodeStreamTransport, "building subscribe request", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return nil, apperrors.New(apperrors.ErrCodeStreamTransport, "subscribing to event stream", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, apperrors.New(apperrors.ErrCodeStreamTransport,
			fmt.Sprintf("event stream subscription returned status %d", resp.StatusCode), nil)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	connected := make(chan error, 1)
	go func() {
		defer resp.Body.Close()
		handshaken := false
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}

			var event Event
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				t.logger.V(1).Info("dropping undecodable event frame", "correlationId", correlationID)
				continue
			}
			if event.CorrelationID == "" {
				event.CorrelationID = correlationID
			}

			if !handshaken {
				if event.Type == EventConnected {
					handshaken = true
					connected <- nil
					continue
				}
				// A subscriber attaching to an already-running operation may
				// have missed the connected frame; treat the first event as
				// implicit confirmation.
				handshaken = true
				connected <- nil
			}

			deliver(event)
			if event.Terminal() {
				return
			}
		}
		if !handshaken {
			err := scanner.Err()
			if err == nil {
				err = fmt.Errorf("event stream closed before handshake")
			}
			connected <- err
		}
	}()

	select {
	case err := <-connected:
		if err != nil {
			cancel()
			return nil, apperrors.New(apperrors.ErrCodeStreamTransport, "awaiting subscription handshake", err)
		}
		return cancel, nil
	case <-time.After(handshakeTimeout):
		cancel()
		return nil, apperrors.New(apperrors.ErrCodeStreamTransport, "subscription handshake timed out", nil)
	case <-ctx.Done():
		cancel()
		return nil, apperrors.New(apperrors.ErrCodeStreamTransport, "subscription cancelled", ctx.Err())
	}
}
