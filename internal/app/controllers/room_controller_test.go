package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/faeln1/go-mockup-api/internal/app/repositories"
	"github.com/faeln1/go-mockup-api/internal/app/services"
	"github.com/faeln1/go-mockup-api/internal/domain/design"
	"github.com/faeln1/go-mockup-api/internal/platform/auth"
	"github.com/faeln1/go-mockup-api/internal/platform/realtime"
	"github.com/faeln1/go-mockup-api/pkg/eventlog"
)

type gatewayFixture struct {
	server   *httptest.Server
	registry *services.RoomRegistry
	journal  string
	ctrl     *RoomController
}

// newGateway serves /ws?userId=... as a master caller for room "design:1".
func newGateway(t *testing.T) *gatewayFixture {
	t.Helper()
	broker := realtime.NewMemoryBroker(0)
	t.Cleanup(func() { _ = broker.Close() })
	registry := services.NewRoomRegistry(realtime.NewMemoryPresence(), time.Minute, nil)
	journal := t.TempDir()
	ctrl := NewRoomController(RoomControllerConfig{
		Broker:        broker,
		Registry:      registry,
		Journal:       eventlog.NewWriter(journal, nil),
		PublicBaseURL: "https://mockup.test",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{Master: true}))
		ctrl.Connect(w, r, "design:1")
	}))
	t.Cleanup(srv.Close)
	return &gatewayFixture{server: srv, registry: registry, journal: journal, ctrl: ctrl}
}

func (f *gatewayFixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?userId=" + userID + "&userName=" + userID
	before := f.registry.Count()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	deadline := time.Now().Add(2 * time.Second)
	for f.registry.Count() == before {
		if time.Now().After(deadline) {
			t.Fatalf("%s never registered", userID)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

// nextFrame reads frames until one of the wanted type arrives.
func nextFrame(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("waiting for %q frame: %v", want, err)
		}
		if frame["type"] == want {
			return frame
		}
	}
}

// nextElementFrame returns the raw bytes of the next element_update frame.
func nextElementFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for element_update frame: %v", err)
		}
		if bytes.HasPrefix(raw, []byte(`{"type":"element_update"`)) {
			return raw
		}
	}
}

func TestGatewayRelaysBetweenSockets(t *testing.T) {
	f := newGateway(t)
	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")

	users := nextFrame(t, alice, "users")
	if list, _ := users["users"].([]any); len(list) != 1 || list[0] != "bob" {
		t.Fatalf("unexpected users frame %v", users)
	}

	if err := bob.WriteJSON(map[string]any{"type": "cursor", "x": 10, "y": 20}); err != nil {
		t.Fatalf("write cursor: %v", err)
	}
	cursors := nextFrame(t, alice, "cursors")
	list, _ := cursors["cursors"].([]any)
	if len(list) != 1 {
		t.Fatalf("expected one cursor, got %v", cursors)
	}
	c, _ := list[0].(map[string]any)
	if c["userId"] != "bob" || c["x"] != float64(10) || c["y"] != float64(20) || c["color"] == "" {
		t.Fatalf("unexpected cursor %v", c)
	}

	if err := alice.WriteJSON(map[string]any{"type": "element_update", "elementId": "el-1", "changes": map[string]any{"x": 5}}); err != nil {
		t.Fatalf("write element: %v", err)
	}
	update := nextFrame(t, bob, "element_update")
	changes, _ := update["changes"].(map[string]any)
	if update["elementId"] != "el-1" || changes["x"] != float64(5) {
		t.Fatalf("unexpected element frame %v", update)
	}

	if err := alice.WriteJSON(map[string]any{"type": "selection", "elementIds": []string{"el-1"}}); err != nil {
		t.Fatalf("write selection: %v", err)
	}
	sel := nextFrame(t, bob, "selection")
	if sel["userId"] != "alice" {
		t.Fatalf("unexpected selection frame %v", sel)
	}

	room, err := f.registry.Get(testContext(t), "design:1")
	if err != nil || len(room.Connections) != 2 {
		t.Fatalf("expected two registered connections, got %+v err=%v", room, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		files, _ := filepath.Glob(filepath.Join(f.journal, "cursor", "design_1", "*.json"))
		if len(files) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected one journaled cursor frame, got %v", files)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGatewayLeaveClearsCursor(t *testing.T) {
	f := newGateway(t)
	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")

	_ = bob.WriteJSON(map[string]any{"type": "cursor", "x": 1, "y": 1})
	nextFrame(t, alice, "cursors")

	_ = bob.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	cursors := nextFrame(t, alice, "cursors")
	if list, _ := cursors["cursors"].([]any); len(list) != 0 {
		t.Fatalf("expected empty cursors after leave, got %v", cursors)
	}
}

func TestGatewayRejectsBadFrames(t *testing.T) {
	f := newGateway(t)
	alice := f.dial(t, "alice")

	_ = alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport"}`))
	frame := nextFrame(t, alice, "error")
	if msg, _ := frame["error"].(string); !strings.Contains(msg, "teleport") {
		t.Fatalf("unexpected error frame %v", frame)
	}

	_ = alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"cursor","x":1}`))
	frame = nextFrame(t, alice, "error")
	if msg, _ := frame["error"].(string); !strings.Contains(msg, "x and y") {
		t.Fatalf("unexpected error frame %v", frame)
	}
}

func TestGatewayRequiresUser(t *testing.T) {
	f := newGateway(t)
	resp, err := http.Get(f.server.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestInviteRendersPNG(t *testing.T) {
	f := newGateway(t)
	if got := f.ctrl.JoinURL("design:1"); got != "https://mockup.test/rooms/design:1/ws" {
		t.Fatalf("unexpected join url %q", got)
	}

	rec := httptest.NewRecorder()
	f.ctrl.Invite(rec, httptest.NewRequest(http.MethodGet, "/rooms/design:1/invite.png?size=128", nil), "design:1")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if _, err := png.Decode(bytes.NewReader(rec.Body.Bytes())); err != nil {
		t.Fatalf("invite is not a png: %v", err)
	}

	rec = httptest.NewRecorder()
	f.ctrl.Invite(rec, httptest.NewRequest(http.MethodGet, "/rooms/design:1/invite.png?format=text", nil), "design:1")
	if !strings.HasPrefix(rec.Body.String(), "https://mockup.test/rooms/design:1/ws\n") || !strings.ContainsRune(rec.Body.String(), '█') {
		t.Fatalf("unexpected text invite %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	f.ctrl.Invite(rec, httptest.NewRequest(http.MethodGet, "/rooms/x/invite.png?size=9999", nil), "x")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized invite, got %d", rec.Code)
	}
}

func TestRoomsListAndGet(t *testing.T) {
	f := newGateway(t)
	f.dial(t, "alice")

	rec := httptest.NewRecorder()
	f.ctrl.List(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	var body struct {
		Count int                    `json:"count"`
		Rooms []services.RoomSummary `json:"rooms"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.Rooms[0].RoomID != "design:1" {
		t.Fatalf("unexpected rooms %+v", body)
	}

	rec = httptest.NewRecorder()
	f.ctrl.Get(rec, httptest.NewRequest(http.MethodGet, "/rooms/none", nil), "none")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGatewayForwardsChangesVerbatim(t *testing.T) {
	f := newGateway(t)
	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")

	for _, changes := range []string{`{"t": "<b>&</b>"}`, "{\n  \"x\" : 5 }", `[1, "a\u0026b"]`} {
		frame := `{"type":"element_update","elementId":"el-1","changes":` + changes + `}`
		if err := bob.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("write element: %v", err)
		}
		raw := nextElementFrame(t, alice)
		if !bytes.Contains(raw, []byte(`"changes":`+changes+`}`)) {
			t.Fatalf("changes rewritten in transit:\n got %s\nwant changes %s", raw, changes)
		}
	}
}

func TestGatewayRefusesRoomsOfOtherOwners(t *testing.T) {
	ctx := testContext(t)
	designs := services.NewDesignService(repositories.NewInMemoryDesignRepo())
	p, err := designs.CreateProject(ctx, "alice", design.CreateProjectInput{Name: "Site"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := designs.CreateDesign(ctx, p.ID, "alice", design.CreateDesignInput{Name: "Home", RoomID: "design:1"}); err != nil {
		t.Fatalf("create design: %v", err)
	}

	broker := realtime.NewMemoryBroker(0)
	t.Cleanup(func() { _ = broker.Close() })
	registry := services.NewRoomRegistry(realtime.NewMemoryPresence(), time.Minute, nil)
	ctrl := NewRoomController(RoomControllerConfig{Broker: broker, Registry: registry, Designs: designs})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.URL.Query().Get("as")
		r = r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{UserID: user, UserName: user}))
		ctrl.Connect(w, r, r.URL.Query().Get("room"))
	}))
	t.Cleanup(srv.Close)
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?as=bob&room=design:1", nil)
	if err == nil {
		t.Fatalf("bob joined a room bound to alice's design")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for bob, got %v", resp)
	}
	if registry.Count() != 0 {
		t.Fatalf("refused socket was registered")
	}

	conn, _, err := websocket.DefaultDialer.Dial(base+"?as=alice&room=design:1", nil)
	if err != nil {
		t.Fatalf("owner dial: %v", err)
	}
	_ = conn.Close()

	lobby, _, err := websocket.DefaultDialer.Dial(base+"?as=bob&room=lobby", nil)
	if err != nil {
		t.Fatalf("unbound room dial: %v", err)
	}
	_ = lobby.Close()
}

// testContext stands in for t.Context (Go 1.24+): a context canceled when
// the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
