package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type namedEvent struct {
	Kind string `json:"kind"`
}

func (e namedEvent) EventName() string { return e.Kind }

type plainEvent struct {
	Value int `json:"value"`
}

func TestNilWriterIsNoop(t *testing.T) {
	if w := NewWriter("  ", nil); w != nil {
		t.Fatalf("expected nil writer for blank dir")
	}
	var w *Writer
	if err := w.Write("room", plainEvent{}); err != nil {
		t.Fatalf("nil writer should not fail: %v", err)
	}
}

func TestWriteFilesByEventNameAndRoom(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil)

	if err := w.Write("design:abc/1", namedEvent{Kind: "cursor"}); err != nil {
		t.Fatalf("write named: %v", err)
	}
	if err := w.Write("design:abc/1", plainEvent{Value: 7}); err != nil {
		t.Fatalf("write plain: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "cursor", "design_abc_1", "*.json"))
	if len(files) != 1 {
		t.Fatalf("expected one cursor file, got %v", files)
	}
	plain, _ := filepath.Glob(filepath.Join(dir, "plainEvent", "design_abc_1", "*.json"))
	if len(plain) != 1 {
		t.Fatalf("expected one plainEvent file, got %v", plain)
	}

	raw, err := os.ReadFile(plain[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record["room"] != "design:abc/1" || record["event_type"] != "plainEvent" {
		t.Fatalf("unexpected record %v", record)
	}
	payload, _ := record["payload"].(map[string]any)
	if payload["value"] != float64(7) {
		t.Fatalf("unexpected payload %v", record["payload"])
	}
}
