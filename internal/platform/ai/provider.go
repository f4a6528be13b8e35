package ai

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrUnknownProvider = errors.New("unknown ai provider")
	ErrEmptyPrompt     = errors.New("prompt is required")
)

type Request struct {
	Prompt string
	// Elements is the current design document the provider may refine.
	Elements json.RawMessage
}

type Result struct {
	Elements  json.RawMessage
	Image     []byte
	ImageType string
	Model     string
}

// Provider turns a prompt into a design document and, optionally, an image.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Registry keys providers by lower-cased name. The first registered provider
// is the default.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	def       string
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	if p == nil {
		return
	}
	name := strings.ToLower(strings.TrimSpace(p.Name()))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
	if r.def == "" {
		r.def = name
	}
}

// Get resolves name, or the default provider when name is blank.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = r.def
	}
	p, ok := r.providers[key]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
