package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/HPD-AI/HPD-Agent-Framework/streaming"
)

// EventType is the "type" field of a streamed reply event.
type EventType string

const (
	EventStepStarted         EventType = "STEP_STARTED"
	EventTextMessageContent  EventType = "TEXT_MESSAGE_CONTENT"
	EventFunctionCallStarted EventType = "FUNCTION_CALL_STARTED"
	EventFunctionCallResult  EventType = "FUNCTION_CALL_RESULT"
	EventStepCompleted       EventType = "STEP_COMPLETED"
	EventConversationEnded   EventType = "CONVERSATION_ENDED"
	EventError               EventType = "ERROR"
)

// Event is one item of a streamed reply. Fields irrelevant to the event's
// type are empty. Types this package does not know are kept as-is.
type Event struct {
	Type         EventType       `json:"type"`
	Step         string          `json:"step,omitempty"`
	Content      string          `json:"content,omitempty"`
	FunctionName string          `json:"function_name,omitempty"`
	Arguments    json.RawMessage `json:"arguments,omitempty"`
	Result       string          `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`

	// Raw is the event text as received.
	Raw string `json:"-"`
}

// ParseEvent decodes one event. Text without a "type" is rejected.
func ParseEvent(text string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(text), &ev); err != nil {
		return Event{}, fmt.Errorf("parse event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, errors.New("parse event: missing type")
	}
	ev.Raw = text
	return ev, nil
}

// Encode renders the event as the runtime sends it.
func (e Event) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	return string(b), nil
}

// Terminal reports whether the event ends the reply.
func (e Event) Terminal() bool {
	return e.Type == EventConversationEnded || e.Type == EventError
}

// Events parses a streamed reply. It stops after a terminal event, an
// unparseable event or a stream error, and closes the stream when it stops
// early.
func Events(ctx context.Context, s *streaming.Stream) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		defer s.Close()
		for text, err := range s.All(ctx) {
			if err != nil {
				yield(Event{}, err)
				return
			}
			ev, err := ParseEvent(text)
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(ev, nil) || ev.Terminal() {
				return
			}
		}
	}
}

// Reply drains a streamed reply and returns the concatenated message text.
// An ERROR event is returned as a *RuntimeError.
func Reply(ctx context.Context, s *streaming.Stream) (string, error) {
	var b strings.Builder
	for ev, err := range Events(ctx, s) {
		if err != nil {
			return b.String(), err
		}
		switch ev.Type {
		case EventTextMessageContent:
			b.WriteString(ev.Content)
		case EventError:
			return b.String(), &RuntimeError{Message: ev.Error}
		}
	}
	return b.String(), nil
}
