package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/faeln1/go-mockup-api/internal/domain/design"
	"github.com/faeln1/go-mockup-api/pkg/logger"
)

const deployEvent = "design.deploy"

var ErrUnknownTarget = errors.New("unknown deploy target")

// DeployDispatcher posts a version to the hook configured for a target and
// returns the URL the hook reports, if any.
type DeployDispatcher interface {
	Dispatch(ctx context.Context, target string, d *design.Design, v *design.Version) (string, error)
	Targets() []string
}

type deployDispatcher struct {
	client *http.Client
	hooks  map[string]string
	token  string
	log    logger.Logger
}

func NewDeployDispatcher(hooks map[string]string, token string, client *http.Client, log logger.Logger) DeployDispatcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.Noop
	}
	clean := make(map[string]string, len(hooks))
	for name, url := range hooks {
		if key := canonicalTarget(name); key != "" && strings.TrimSpace(url) != "" {
			clean[key] = strings.TrimSpace(url)
		}
	}
	return &deployDispatcher{client: client, hooks: clean, token: strings.TrimSpace(token), log: log}
}

func (d *deployDispatcher) Targets() []string {
	out := make([]string, 0, len(d.hooks))
	for name := range d.hooks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (d *deployDispatcher) Dispatch(ctx context.Context, target string, ds *design.Design, v *design.Version) (string, error) {
	name := canonicalTarget(target)
	targetURL, ok := d.hooks[name]
	if !ok {
		return "", ErrUnknownTarget
	}
	body := map[string]any{
		"event":     deployEvent,
		"design":    ds.ID,
		"version":   v.Number,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"designName": ds.Name,
			"roomId":     ds.RoomID,
			"versionId":  v.ID,
			"elements":   v.Elements,
			"imageUrl":   v.ImageURL,
		},
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
		req.Header.Set("X-Deploy-Token", d.token)
	}

	d.log.Debugf("deploy dispatch start design=%s version=%d target=%s url=%s", ds.ID, v.Number, name, targetURL)
	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Warnf("deploy dispatch error design=%s target=%s err=%v", ds.ID, name, err)
		return "", err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.log.Warnf("deploy dispatch failed design=%s target=%s status=%d", ds.ID, name, resp.StatusCode)
		return "", fmt.Errorf("deploy hook returned status %d", resp.StatusCode)
	}

	var reply struct {
		URL string `json:"url"`
	}
	_ = json.Unmarshal(raw, &reply)
	d.log.Debugf("deploy dispatch success design=%s target=%s status=%d", ds.ID, name, resp.StatusCode)
	return strings.TrimSpace(reply.URL), nil
}

func canonicalTarget(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
