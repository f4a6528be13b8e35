package collab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EventType is the closed set of collaboration event kinds.
type EventType string

const (
	EventCursor        EventType = "cursor"
	EventSelection     EventType = "selection"
	EventElementUpdate EventType = "element_update"
	EventUserJoin      EventType = "user_join"
	EventUserLeave     EventType = "user_leave"
)

// Payload is implemented only by the payload types declared in this package.
type Payload interface {
	Type() EventType
	validate() error
}

type CursorPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type SelectionPayload struct {
	ElementIDs []string `json:"elementIds"`
}

// ElementUpdatePayload carries a partial update for one design element.
// Changes is never interpreted here; it is forwarded byte for byte.
type ElementUpdatePayload struct {
	ElementID string          `json:"elementId"`
	Changes   json.RawMessage `json:"changes"`
}

type JoinPayload struct{}

type LeavePayload struct{}

func (CursorPayload) Type() EventType        { return EventCursor }
func (SelectionPayload) Type() EventType     { return EventSelection }
func (ElementUpdatePayload) Type() EventType { return EventElementUpdate }
func (JoinPayload) Type() EventType          { return EventUserJoin }
func (LeavePayload) Type() EventType         { return EventUserLeave }

func (p CursorPayload) validate() error {
	if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
		return fmt.Errorf("cursor coordinates must be finite")
	}
	return nil
}

func (p SelectionPayload) validate() error {
	for _, id := range p.ElementIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("selection contains an empty element id")
		}
	}
	return nil
}

func (p ElementUpdatePayload) validate() error {
	if strings.TrimSpace(p.ElementID) == "" {
		return fmt.Errorf("element_update requires elementId")
	}
	if len(p.Changes) == 0 {
		return fmt.Errorf("element_update requires changes")
	}
	if !json.Valid(p.Changes) {
		return fmt.Errorf("element_update changes is not valid JSON")
	}
	return nil
}

func (JoinPayload) validate() error  { return nil }
func (LeavePayload) validate() error { return nil }

// Event is the unit of exchange on a room channel.
type Event struct {
	UserID    string
	UserName  string
	Timestamp int64 // ms since epoch; display hint only
	Payload   Payload
}

func (e Event) Type() EventType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Type()
}

// EventName lets the event journal file events by kind.
func (e Event) EventName() string { return string(e.Type()) }

type wireEvent struct {
	Type      EventType       `json:"type"`
	UserID    string          `json:"userId"`
	UserName  string          `json:"userName"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// MarshalJSON writes the wire envelope. Element changes are spliced in as
// received; nothing is compacted or HTML-escaped.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("collab: event has no payload")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	if err := writeJSON(&buf, e.Payload.Type()); err != nil {
		return nil, err
	}
	buf.WriteString(`,"userId":`)
	if err := writeJSON(&buf, e.UserID); err != nil {
		return nil, err
	}
	buf.WriteString(`,"userName":`)
	if err := writeJSON(&buf, e.UserName); err != nil {
		return nil, err
	}
	buf.WriteString(`,"data":`)
	if err := writePayload(&buf, e.Payload); err != nil {
		return nil, err
	}
	buf.WriteString(`,"timestamp":`)
	buf.WriteString(strconv.FormatInt(e.Timestamp, 10))
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writePayload(buf *bytes.Buffer, p Payload) error {
	u, ok := p.(ElementUpdatePayload)
	if !ok {
		return writeJSON(buf, p)
	}
	if !json.Valid(u.Changes) {
		return fmt.Errorf("collab: element_update changes is not valid JSON")
	}
	buf.WriteString(`{"elementId":`)
	if err := writeJSON(buf, u.ElementID); err != nil {
		return err
	}
	buf.WriteString(`,"changes":`)
	buf.Write(u.Changes)
	buf.WriteByte('}')
	return nil
}

// writeJSON appends v without HTML escaping or the encoder's newline.
func writeJSON(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1)
	return nil
}

// Encode serializes an event for publishing. It calls MarshalJSON directly
// because json.Marshal would re-compact the result.
func Encode(e Event) ([]byte, error) {
	return e.MarshalJSON()
}

// Decode parses and validates an inbound channel message. Any failure is a
// *MalformedEventError.
func Decode(raw []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, &MalformedEventError{Reason: "decode envelope", Err: err}
	}
	if strings.TrimSpace(w.UserID) == "" {
		return Event{}, &MalformedEventError{Reason: "missing userId"}
	}

	var (
		payload Payload
		err     error
	)
	switch w.Type {
	case EventCursor:
		var raw struct {
			X *float64 `json:"x"`
			Y *float64 `json:"y"`
		}
		if err = decodeData(w.Data, &raw); err == nil {
			if raw.X == nil || raw.Y == nil {
				err = fmt.Errorf("cursor requires x and y")
			} else {
				payload = CursorPayload{X: *raw.X, Y: *raw.Y}
			}
		}
	case EventSelection:
		var p SelectionPayload
		err = decodeData(w.Data, &p)
		payload = p
	case EventElementUpdate:
		var p ElementUpdatePayload
		err = decodeData(w.Data, &p)
		payload = p
	case EventUserJoin:
		payload = JoinPayload{}
	case EventUserLeave:
		payload = LeavePayload{}
	default:
		return Event{}, &MalformedEventError{Reason: fmt.Sprintf("unknown event type %q", w.Type)}
	}
	if err != nil {
		return Event{}, &MalformedEventError{Reason: "decode " + string(w.Type) + " data", Err: err}
	}
	if err := payload.validate(); err != nil {
		return Event{}, &MalformedEventError{Reason: "invalid " + string(w.Type), Err: err}
	}

	return Event{
		UserID:    w.UserID,
		UserName:  w.UserName,
		Timestamp: w.Timestamp,
		Payload:   payload,
	}, nil
}

func decodeData(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(data, v)
}
