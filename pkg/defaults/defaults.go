// Package defaults provides form.Provider implementations for initial value
// snapshots: static maps, files and HTTP JSON endpoints.
package defaults

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formstate/internal/valuepath"
	"github.com/goliatone/go-formstate/pkg/form"
)

// Transform rewrites a fetched document into the form's value tree.
type Transform func(map[string]any) (map[string]any, error)

// Static returns a provider that always yields a copy of values.
func Static(values map[string]any) form.Provider {
	snapshot := valuepath.NormalizeTree(values)
	return form.ProviderFunc(func(ctx context.Context) (map[string]any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return valuepath.CloneMap(snapshot), nil
	})
}

// File reads a YAML or JSON document from fsys. JSON is a subset of YAML, so
// one decoder serves both.
func File(fsys fs.FS, path string, transform Transform) form.Provider {
	return form.ProviderFunc(func(ctx context.Context) (map[string]any, error) {
		if fsys == nil {
			return nil, errors.New("defaults: file system is nil")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("defaults: read %s: %w", path, err)
		}
		var doc map[string]any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("defaults: decode %s: %w", path, err)
		}
		return apply(transform, doc)
	})
}

// HTTPOption configures an HTTP provider.
type HTTPOption func(*httpProvider)

// WithHTTPClient overrides the client used for the request.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(p *httpProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithTimeout bounds the request.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(p *httpProvider) {
		p.timeout = timeout
	}
}

// WithTransform post-processes the decoded document.
func WithTransform(fn Transform) HTTPOption {
	return func(p *httpProvider) {
		p.transform = fn
	}
}

// WithHeader adds a request header.
func WithHeader(key, value string) HTTPOption {
	return func(p *httpProvider) {
		p.headers.Add(key, value)
	}
}

type httpProvider struct {
	url       string
	client    *http.Client
	timeout   time.Duration
	transform Transform
	headers   http.Header
}

// HTTP fetches a JSON object from url.
func HTTP(url string, opts ...HTTPOption) form.Provider {
	p := &httpProvider{
		url:     url,
		client:  http.DefaultClient,
		timeout: 10 * time.Second,
		headers: make(http.Header),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *httpProvider) DefaultValues(ctx context.Context) (map[string]any, error) {
	if p.url == "" {
		return nil, errors.New("defaults: url is required")
	}

	reqCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("defaults: build request: %w", err)
	}
	req.Header = p.headers.Clone()
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("defaults: fetch %s: %w", p.url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("defaults: fetch %s: unexpected status %s", p.url, resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("defaults: read body: %w", err)
	}

	var doc map[string]any
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("defaults: decode body: %w", err)
	}
	return apply(p.transform, doc)
}

func apply(transform Transform, doc map[string]any) (map[string]any, error) {
	if doc == nil {
		doc = map[string]any{}
	}
	if transform == nil {
		return doc, nil
	}
	out, err := transform(doc)
	if err != nil {
		return nil, fmt.Errorf("defaults: transform: %w", err)
	}
	return out, nil
}
