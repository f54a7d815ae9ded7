package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/simm/internal/events"
)

const eventWriteTimeout = 10 * time.Second

// EventsStreamHandler streams bus events to websocket clients.
type EventsStreamHandler struct {
	bus       *events.Bus
	accept    *websocket.AcceptOptions
	heartbeat time.Duration
	log       zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler. Cross-origin
// clients are accepted only when their host matches one of originPatterns;
// devMode accepts any origin.
func NewEventsStreamHandler(bus *events.Bus, originPatterns []string, devMode bool, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus: bus,
		accept: &websocket.AcceptOptions{
			OriginPatterns:     originPatterns,
			InsecureSkipVerify: devMode,
		},
		heartbeat: 30 * time.Second,
		log:       log.With().Str("component", "events_stream").Logger(),
	}
}

// streamMessage is a control message sent outside the event flow
type streamMessage struct {
	Type      string    `json:"type"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// parseTypes reads the comma-separated types filter. An empty filter selects
// every event type.
func parseTypes(filter string) ([]events.EventType, bool) {
	if filter == "" {
		return events.Types, true
	}
	known := make(map[events.EventType]bool, len(events.Types))
	for _, t := range events.Types {
		known[t] = true
	}
	var types []events.EventType
	for _, raw := range strings.Split(filter, ",") {
		t := events.EventType(strings.ToUpper(strings.TrimSpace(raw)))
		if !known[t] {
			return nil, false
		}
		types = append(types, t)
	}
	return types, true
}

// ServeHTTP handles GET /ws/events
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	types, ok := parseTypes(r.URL.Query().Get("types"))
	if !ok {
		http.Error(w, "unknown event type in filter", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		// Accept has already replied to the client
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	eventChan := make(chan *events.Event, 100)
	handler := func(event *events.Event) {
		// Non-blocking send (drop if channel full)
		select {
		case eventChan <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}
	for _, t := range types {
		unsubscribe := h.bus.Subscribe(t, handler)
		defer unsubscribe()
	}

	h.log.Info().Int("types", len(types)).Msg("Client connected to event stream")

	// The client never sends data; ctx ends when it closes the connection.
	ctx := conn.CloseRead(r.Context())

	if err := h.write(ctx, conn, streamMessage{Type: "connected", Message: "Connected to event stream", Timestamp: time.Now().UTC()}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-eventChan:
			if err := h.write(ctx, conn, event); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := h.write(ctx, conn, streamMessage{Type: "heartbeat", Timestamp: time.Now().UTC()}); err != nil {
				return
			}
		}
	}
}

func (h *EventsStreamHandler) write(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		h.log.Debug().Err(err).Msg("Failed to write to event stream")
		return err
	}
	return nil
}
