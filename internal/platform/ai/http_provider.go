package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/faeln1/go-mockup-api/pkg/logger"
)

type HTTPConfig struct {
	Name     string
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// HTTPProvider speaks a small JSON protocol:
// POST {"prompt","model","elements"} -> {"elements":...,"image":"<base64>","imageType","model"}.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
	log    logger.Logger
}

func NewHTTPProvider(cfg HTTPConfig, client *http.Client, log logger.Logger) *HTTPProvider {
	if cfg.Name == "" {
		cfg.Name = "http"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = logger.Noop
	}
	return &HTTPProvider{cfg: cfg, client: client, log: log}
}

func (p *HTTPProvider) Name() string { return p.cfg.Name }

type httpRequest struct {
	Prompt   string          `json:"prompt"`
	Model    string          `json:"model,omitempty"`
	Elements json.RawMessage `json:"elements,omitempty"`
}

type httpResponse struct {
	Elements  json.RawMessage `json:"elements"`
	Image     string          `json:"image"`
	ImageType string          `json:"imageType"`
	Model     string          `json:"model"`
	Error     string          `json:"error"`
}

func (p *HTTPProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	buf, err := json.Marshal(httpRequest{Prompt: req.Prompt, Model: p.cfg.Model, Elements: req.Elements})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.log.Warnf("provider=%s request error: %v", p.cfg.Name, err)
		return nil, fmt.Errorf("ai provider %s: %w", p.cfg.Name, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	p.log.Debugf("provider=%s status=%d took=%s", p.cfg.Name, resp.StatusCode, time.Since(start))

	var out httpResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("ai provider %s: decode response: %w", p.cfg.Name, err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(out.Error)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("ai provider %s: status %d: %s", p.cfg.Name, resp.StatusCode, msg)
	}

	result := &Result{Elements: out.Elements, ImageType: out.ImageType, Model: out.Model}
	if len(bytes.TrimSpace(result.Elements)) == 0 || !json.Valid(result.Elements) {
		return nil, fmt.Errorf("ai provider %s: response has no valid elements", p.cfg.Name)
	}
	if out.Image != "" {
		raw := out.Image
		if i := strings.Index(raw, ","); strings.HasPrefix(raw, "data:") && i > 0 {
			raw = raw[i+1:]
		}
		img, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("ai provider %s: decode image: %w", p.cfg.Name, err)
		}
		result.Image = img
		if result.ImageType == "" {
			result.ImageType = http.DetectContentType(img)
		}
	}
	if result.Model == "" {
		result.Model = p.cfg.Model
	}
	return result, nil
}

var _ Provider = (*HTTPProvider)(nil)
