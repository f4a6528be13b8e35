package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPProviderGenerate(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	var gotAuth string
	var gotBody httpRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"elements": []map[string]any{{"id": "el-1", "type": "rect"}},
			"image":    base64.StdEncoding.EncodeToString(png),
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{Endpoint: srv.URL, APIKey: "k", Model: "m1"}, nil, nil)
	res, err := p.Generate(context.Background(), Request{Prompt: "a landing page"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if gotAuth != "Bearer k" {
		t.Fatalf("expected bearer key, got %q", gotAuth)
	}
	if gotBody.Prompt != "a landing page" || gotBody.Model != "m1" {
		t.Fatalf("unexpected request body %+v", gotBody)
	}
	if !strings.Contains(string(res.Elements), "el-1") {
		t.Fatalf("unexpected elements %s", res.Elements)
	}
	if string(res.Image) != string(png) || res.ImageType != "image/png" {
		t.Fatalf("unexpected image %q type %q", res.Image, res.ImageType)
	}
	if res.Model != "m1" {
		t.Fatalf("expected model fallback m1, got %q", res.Model)
	}
}

func TestHTTPProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{Endpoint: srv.URL}, nil, nil)
	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected rate limited error, got %v", err)
	}
}

func TestHTTPProviderRejectsEmptyPrompt(t *testing.T) {
	p := NewHTTPProvider(HTTPConfig{Endpoint: "http://unused"}, nil, nil)
	if _, err := p.Generate(context.Background(), Request{Prompt: "  "}); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
}

func TestRegistryDefaultsToFirst(t *testing.T) {
	a := NewHTTPProvider(HTTPConfig{Name: "Alpha"}, nil, nil)
	b := NewHTTPProvider(HTTPConfig{Name: "beta"}, nil, nil)
	r := NewRegistry(a, b)

	got, err := r.Get("")
	if err != nil || got.Name() != "Alpha" {
		t.Fatalf("expected default alpha, got %v (%v)", got, err)
	}
	if got, _ := r.Get("BETA"); got != b {
		t.Fatalf("lookup should be case-insensitive")
	}
	if _, err := r.Get("gamma"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if names := r.Names(); len(names) != 2 || names[0] != "alpha" {
		t.Fatalf("unexpected names %v", names)
	}
}
