package stream

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
)

// Hub is the server half of the event transport: producers publish events
// tagged with a correlation id, and HTTP subscribers receive them as SSE
// frames on GET /events/{correlationID}. The bundled diagnostics provider
// runs one of these next to its MCP endpoint.
type Hub struct {
	mu     sync.Mutex
	conns  map[string][]chan Event
	logger logr.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger logr.Logger) *Hub {
	return &Hub{
		conns:  make(map[string][]chan Event),
		logger: logger,
	}
}

// Router returns the HTTP routes served by the hub.
func (h *Hub) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/events/{correlationID}", h.handleSubscribe).Methods(http.MethodGet)
	return r
}

// Publish delivers the event to every subscriber of its correlation id.
// Delivery is non-blocking; slow subscribers lose events rather than stall
// the producing command.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.conns[event.CorrelationID] {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *Hub) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	correlationID := mux.Vars(r)["correlationID"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.conns[correlationID] = append(h.conns[correlationID], ch)
	h.mu.Unlock()
	defer h.drop(correlationID, ch)

	h.logger.V(1).Info("event subscriber attached", "correlationId", correlationID)
	if err := writeFrame(w, Event{Type: EventConnected, CorrelationID: correlationID}); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-ch:
			if err := writeFrame(w, event); err != nil {
				return
			}
			flusher.Flush()
			if event.Terminal() {
				return
			}
		}
	}
}

func (h *Hub) drop(correlationID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.conns[correlationID]
	for i, sub := range subs {
		if sub == ch {
			h.conns[correlationID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.conns[correlationID]) == 0 {
		delete(h.conns, correlationID)
	}
}

func writeFrame(w http.ResponseWriter, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}
