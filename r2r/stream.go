package r2r

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aqua777/go-ragchat/ragerr"
)

// EventType is the SSE event name.
type EventType string

const (
	EventSearchResults EventType = "search_results"
	// EventMessage carries an answer delta. It is also the SSE default for unnamed events.
	EventMessage     EventType = "message"
	EventCitation    EventType = "citation"
	EventFinalAnswer EventType = "final_answer"
	EventDone        EventType = "done"
)

// Event is one server-sent event.
type Event struct {
	Type EventType
	Data json.RawMessage
}

type messageDelta struct {
	Delta struct {
		Content []struct {
			Type    string `json:"type"`
			Payload struct {
				Type  string `json:"type"`
				Value string `json:"value"`
			} `json:"payload"`
		} `json:"content"`
	} `json:"delta"`
}

// DeltaText returns the visible answer text of a message event, or "" for other events.
func (e Event) DeltaText() string {
	if e.Type != EventMessage {
		return ""
	}
	var d messageDelta
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return ""
	}
	var sb strings.Builder
	for _, c := range d.Delta.Content {
		sb.WriteString(c.Payload.Value)
	}
	return sb.String()
}

// EventStream reads server-sent events from a response body.
// Events is closed at end of stream, on error, on Close or when the context ends.
type EventStream struct {
	body   io.ReadCloser
	events chan Event
	closed chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// NewEventStream starts reading SSE events from body.
func NewEventStream(ctx context.Context, body io.ReadCloser) *EventStream {
	s := &EventStream{
		body:   body,
		events: make(chan Event),
		closed: make(chan struct{}),
	}
	go s.read(ctx)
	return s
}

// Events returns the event channel.
func (s *EventStream) Events() <-chan Event {
	return s.events
}

// Err returns the read error, if any. It is meaningful once Events is closed.
func (s *EventStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops reading and releases the connection.
func (s *EventStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.body.Close()
	})
	return err
}

func (s *EventStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *EventStream) read(ctx context.Context) {
	defer close(s.events)
	defer s.Close()

	reader := bufio.NewReader(s.body)
	eventType := ""
	var data []string
	finished := false

	// A body that ends before a done event or [DONE] was cut short.
	eof := func() {
		if finished {
			return
		}
		select {
		case <-s.closed:
		default:
			s.setErr(ragerr.New(ragerr.KindUpstream, "r2r.stream", "stream ended before done"))
		}
	}

	dispatch := func() bool {
		if len(data) == 0 {
			eventType = ""
			return true
		}
		payload := strings.Join(data, "\n")
		typ := EventType(eventType)
		if typ == "" {
			typ = EventMessage
		}
		eventType, data = "", nil

		if payload == "[DONE]" {
			finished = true
			return false
		}
		select {
		case s.events <- Event{Type: typ, Data: json.RawMessage(payload)}:
		case <-s.closed:
			return false
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return false
		}
		if typ == EventDone {
			finished = true
			return false
		}
		return true
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if !errors.Is(err, io.EOF) {
				select {
				case <-s.closed:
				default:
					s.setErr(fmt.Errorf("failed to read stream: %w", err))
				}
			} else if dispatch() {
				eof()
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if !dispatch() {
				return
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}

		if err != nil {
			// Last line without trailing newline.
			if dispatch() {
				eof()
			}
			return
		}
	}
}
