package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/faeln1/go-mockup-api/internal/app/controllers"
	"github.com/faeln1/go-mockup-api/internal/app/repositories"
	"github.com/faeln1/go-mockup-api/internal/app/services"
	"github.com/faeln1/go-mockup-api/internal/platform/ai"
	"github.com/faeln1/go-mockup-api/internal/platform/auth"
	"github.com/faeln1/go-mockup-api/internal/platform/realtime"
)

const master = "master-secret"

func newTestRouter(t *testing.T) stdhttp.Handler {
	t.Helper()
	h, _ := newTestRouterWithRegistry(t)
	return h
}

func newTestRouterWithRegistry(t *testing.T) (stdhttp.Handler, *services.RoomRegistry) {
	t.Helper()
	docs := filepath.Join(t.TempDir(), "openapi.yaml")
	if err := os.WriteFile(docs, []byte("openapi: 3.0.3\ninfo:\n  title: Mockup Studio API\n"), 0o644); err != nil {
		t.Fatalf("write docs: %v", err)
	}

	designs := services.NewDesignService(repositories.NewInMemoryDesignRepo())
	deploys := services.NewDeployService(designs, repositories.NewInMemoryDeploymentRepo(), services.NewDeployDispatcher(nil, "", nil, nil), nil)
	registry := services.NewRoomRegistry(realtime.NewMemoryPresence(), time.Minute, nil)
	issuer := auth.NewIssuer("jwt-secret", time.Hour)

	return NewRouter(RouterConfig{
		AuthCtrl:    controllers.NewAuthController(issuer),
		ProjectCtrl: controllers.NewProjectController(designs),
		DesignCtrl: controllers.NewDesignController(designs,
			services.NewGenerationService(designs, ai.NewRegistry(), nil, nil),
			services.NewAssetService(designs, nil),
			deploys),
		RoomCtrl: controllers.NewRoomController(controllers.RoomControllerConfig{
			Broker:   realtime.NewMemoryBroker(0),
			Registry: registry,
			Designs:  designs,
		}),
		Registry:      registry,
		Issuer:        issuer,
		SwaggerEnable: true,
		DocsPath:      docs,
		MasterToken:   master,
	}), registry
}

func do(t *testing.T, h stdhttp.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestPublicEndpoints(t *testing.T) {
	h := newTestRouter(t)
	if rec := do(t, h, stdhttp.MethodGet, "/health", "", nil); rec.Code != stdhttp.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	if rec := do(t, h, stdhttp.MethodGet, "/nope", "", nil); rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("unknown path: %d", rec.Code)
	}
	rec := do(t, h, stdhttp.MethodGet, "/openapi.json", "", nil)
	doc := decode[map[string]any](t, rec)
	if doc["openapi"] != "3.0.3" {
		t.Fatalf("unexpected openapi json %v", doc)
	}
}

func TestAuthRequired(t *testing.T) {
	h := newTestRouter(t)
	if rec := do(t, h, stdhttp.MethodGet, "/projects", "", nil); rec.Code != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := do(t, h, stdhttp.MethodGet, "/projects", "bogus", nil); rec.Code != stdhttp.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestTokenFlowAndDesignRoutes(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, stdhttp.MethodPost, "/auth/token", master, map[string]string{"userId": "alice", "userName": "Alice"})
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("issue token: %d %s", rec.Code, rec.Body.String())
	}
	token := decode[map[string]any](t, rec)["token"].(string)

	if rec := do(t, h, stdhttp.MethodPost, "/auth/token", token, map[string]string{"userId": "eve"}); rec.Code != stdhttp.StatusForbidden {
		t.Fatalf("user tokens must not mint tokens, got %d", rec.Code)
	}

	rec = do(t, h, stdhttp.MethodPost, "/verify-creds", token, nil)
	if creds := decode[map[string]any](t, rec); creds["userId"] != "alice" || creds["tokenType"] != "user" {
		t.Fatalf("unexpected creds %v", creds)
	}

	rec = do(t, h, stdhttp.MethodPost, "/projects", token, map[string]string{"name": "Site"})
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("create project: %d %s", rec.Code, rec.Body.String())
	}
	project := decode[map[string]any](t, rec)
	if project["ownerId"] != "alice" {
		t.Fatalf("unexpected owner %v", project)
	}
	if rec := do(t, h, stdhttp.MethodPost, "/projects", token, map[string]string{"name": "Site"}); rec.Code != stdhttp.StatusConflict {
		t.Fatalf("duplicate project: %d", rec.Code)
	}

	pid := project["id"].(string)
	rec = do(t, h, stdhttp.MethodPost, "/projects/"+pid+"/designs", token, map[string]any{"name": "Home", "elements": []any{}})
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("create design: %d %s", rec.Code, rec.Body.String())
	}
	did := decode[map[string]any](t, rec)["id"].(string)

	rec = do(t, h, stdhttp.MethodPost, "/designs/"+did+"/versions", token, map[string]any{"elements": map[string]any{"title": "v2"}})
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("save version: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, stdhttp.MethodPost, "/designs/"+did+"/versions/1/restore", token, nil)
	if v := decode[map[string]any](t, rec); rec.Code != stdhttp.StatusCreated || v["number"] != float64(3) {
		t.Fatalf("restore: %d %v", rec.Code, v)
	}
	if rec := do(t, h, stdhttp.MethodGet, "/designs/"+did+"/versions/abc", token, nil); rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("bad version number: %d", rec.Code)
	}
	if rec := do(t, h, stdhttp.MethodGet, "/designs/"+did+"/versions/9", token, nil); rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("missing version: %d", rec.Code)
	}
	if rec := do(t, h, stdhttp.MethodPost, "/designs/"+did+"/generate", token, map[string]string{"prompt": "x"}); rec.Code != stdhttp.StatusServiceUnavailable {
		t.Fatalf("generation without providers: %d", rec.Code)
	}
	if rec := do(t, h, stdhttp.MethodPost, "/designs/"+did+"/deploy", token, map[string]string{"target": "prod"}); rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("unknown deploy target: %d", rec.Code)
	}
	if rec := do(t, h, stdhttp.MethodGet, "/designs/missing", token, nil); rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("missing design: %d", rec.Code)
	}

	other := do(t, h, stdhttp.MethodPost, "/auth/token", master, map[string]string{"userId": "bob"})
	bobToken := decode[map[string]any](t, other)["token"].(string)
	if rec := do(t, h, stdhttp.MethodGet, "/projects/"+pid, bobToken, nil); rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("other owners' projects must be hidden, got %d", rec.Code)
	}
	if rec := do(t, h, stdhttp.MethodGet, "/projects/"+pid, master, nil); rec.Code != stdhttp.StatusOK {
		t.Fatalf("master sees every project, got %d", rec.Code)
	}

	if rec := do(t, h, stdhttp.MethodGet, "/rooms/design:"+did, token, nil); rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("empty room: %d", rec.Code)
	}
}

func tokenFor(t *testing.T, h stdhttp.Handler, userID string) string {
	t.Helper()
	rec := do(t, h, stdhttp.MethodPost, "/auth/token", master, map[string]string{"userId": userID})
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("issue token for %s: %d", userID, rec.Code)
	}
	return decode[map[string]any](t, rec)["token"].(string)
}

func TestDesignsAndRoomsAreHiddenFromOtherOwners(t *testing.T) {
	h, registry := newTestRouterWithRegistry(t)
	alice := tokenFor(t, h, "alice")
	bob := tokenFor(t, h, "bob")

	rec := do(t, h, stdhttp.MethodPost, "/projects", alice, map[string]string{"name": "Site"})
	pid := decode[map[string]any](t, rec)["id"].(string)
	rec = do(t, h, stdhttp.MethodPost, "/projects/"+pid+"/designs", alice, map[string]any{"name": "Home", "elements": []any{}})
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("create design: %d %s", rec.Code, rec.Body.String())
	}
	did := decode[map[string]any](t, rec)["id"].(string)
	room := "design:" + did

	ctx := context.Background()
	registry.Add(ctx, room, "alice", "Alice")
	registry.Add(ctx, "lobby", "carol", "Carol")

	hidden := []struct{ method, path string }{
		{stdhttp.MethodGet, "/designs/" + did},
		{stdhttp.MethodPost, "/designs/" + did + "/versions"},
		{stdhttp.MethodGet, "/designs/" + did + "/versions"},
		{stdhttp.MethodGet, "/designs/" + did + "/versions/1"},
		{stdhttp.MethodPost, "/designs/" + did + "/versions/1/restore"},
		{stdhttp.MethodPost, "/designs/" + did + "/generate"},
		{stdhttp.MethodPost, "/designs/" + did + "/assets"},
		{stdhttp.MethodPost, "/designs/" + did + "/deploy"},
		{stdhttp.MethodGet, "/designs/" + did + "/deployments"},
		{stdhttp.MethodGet, "/rooms/" + room},
		{stdhttp.MethodGet, "/rooms/" + room + "/ws"},
		{stdhttp.MethodGet, "/rooms/" + room + "/invite.png"},
	}
	body := map[string]any{"elements": map[string]any{"stolen": true}, "prompt": "x", "target": "prod"}
	for _, c := range hidden {
		if rec := do(t, h, c.method, c.path, bob, body); rec.Code != stdhttp.StatusNotFound {
			t.Fatalf("%s %s as another owner: expected 404, got %d %s", c.method, c.path, rec.Code, rec.Body.String())
		}
	}

	rec = do(t, h, stdhttp.MethodGet, "/designs/"+did+"/versions", alice, nil)
	if versions := decode[[]map[string]any](t, rec); len(versions) != 1 {
		t.Fatalf("another owner changed the history: %v", versions)
	}
	if rec := do(t, h, stdhttp.MethodGet, "/rooms/"+room, alice, nil); rec.Code != stdhttp.StatusOK {
		t.Fatalf("owner room: %d", rec.Code)
	}
	if rec := do(t, h, stdhttp.MethodGet, "/designs/"+did, master, nil); rec.Code != stdhttp.StatusOK {
		t.Fatalf("master sees every design, got %d", rec.Code)
	}
	if rec := do(t, h, stdhttp.MethodGet, "/rooms/lobby", bob, nil); rec.Code != stdhttp.StatusOK {
		t.Fatalf("rooms without a design stay open, got %d", rec.Code)
	}

	type listing struct {
		Count int `json:"count"`
		Rooms []struct {
			RoomID string `json:"roomId"`
		} `json:"rooms"`
	}
	rec = do(t, h, stdhttp.MethodGet, "/rooms", bob, nil)
	if l := decode[listing](t, rec); l.Count != 1 || l.Rooms[0].RoomID != "lobby" {
		t.Fatalf("bob should only see the lobby, got %+v", l)
	}
	rec = do(t, h, stdhttp.MethodGet, "/rooms", alice, nil)
	if l := decode[listing](t, rec); l.Count != 2 {
		t.Fatalf("alice should see both rooms, got %+v", l)
	}
}
