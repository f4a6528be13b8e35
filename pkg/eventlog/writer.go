package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/faeln1/go-mockup-api/pkg/logger"
)

var invalidSegment = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Named events choose their own directory; anything else is filed by Go type.
type Named interface {
	EventName() string
}

// Writer journals room traffic to disk, one JSON file per event.
type Writer struct {
	baseDir string
	log     logger.Logger
	now     func() time.Time
}

// NewWriter returns nil when baseDir is blank; a nil Writer is a no-op.
func NewWriter(baseDir string, log logger.Logger) *Writer {
	base := strings.TrimSpace(baseDir)
	if base == "" {
		return nil
	}
	if log == nil {
		log = logger.Noop
	}
	return &Writer{baseDir: filepath.Clean(base), log: log, now: time.Now}
}

func (w *Writer) Enabled() bool {
	return w != nil && w.baseDir != ""
}

// Write stores evt under baseDir/<event>/<room>/<timestamp>-<uuid>.json.
func (w *Writer) Write(room string, evt any) error {
	if !w.Enabled() || evt == nil {
		return nil
	}

	eventType := detectEventType(evt)
	dir := filepath.Join(w.baseDir, sanitizeSegment(eventType), sanitizeSegment(room))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	ts := w.now().UTC()
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.json", ts.Format("20060102T150405Z"), uuid.NewString()))

	record := map[string]any{
		"event_type":  eventType,
		"room":        room,
		"received_at": ts.Format(time.RFC3339Nano),
		"payload":     marshalPayload(evt),
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.log.Debugf("journaled %s for room=%s", eventType, room)
	return nil
}

func detectEventType(evt any) string {
	if named, ok := evt.(Named); ok {
		if name := strings.TrimSpace(named.EventName()); name != "" {
			return name
		}
	}
	t := fmt.Sprintf("%T", evt)
	if idx := strings.LastIndex(t, "."); idx >= 0 && idx < len(t)-1 {
		return t[idx+1:]
	}
	if t == "" {
		return "Unknown"
	}
	return t
}

func sanitizeSegment(raw string) string {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "unknown"
	}
	sanitized := invalidSegment.ReplaceAllString(candidate, "_")
	sanitized = strings.Trim(sanitized, "._-")
	if sanitized == "" {
		return "unknown"
	}
	return sanitized
}

func marshalPayload(evt any) any {
	raw, err := json.Marshal(evt)
	if err != nil {
		return map[string]any{
			"marshal_error": err.Error(),
			"payload_text":  fmt.Sprintf("%+v", evt),
		}
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return map[string]any{"unmarshal_error": err.Error()}
	}
	return payload
}
