package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/internal/valuepath"
	"github.com/goliatone/go-formstate/pkg/errmap"
	"github.com/goliatone/go-formstate/pkg/form"
)

var errRejected = errors.New("submission rejected by server")

// submitter posts values to cfg.SubmitURL, or prints them when no URL is
// configured. Validation errors returned by the server are mapped back onto
// the engine's fields.
type submitter struct {
	url    string
	client *http.Client
	engine *form.Engine
	out    io.Writer
	logger *zap.Logger
}

func (s submitter) submit(ctx context.Context, values map[string]any) error {
	body, err := sonic.MarshalIndent(valuepath.JSONSafe(values), "", "  ")
	if err != nil {
		return fmt.Errorf("encode values: %w", err)
	}
	if s.url == "" {
		_, err := fmt.Fprintf(s.out, "Form submitted\n%s\n", body)
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		s.logger.Info("form submitted", zap.String("url", s.url), zap.Int("status", resp.StatusCode))
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	payload, err := errmap.Decode(raw)
	if err != nil {
		return fmt.Errorf("%w: %s", errRejected, resp.Status)
	}
	mapping := s.engine.ApplyServerPayload(payload)
	s.logger.Warn("server rejected submission",
		zap.Int("status", resp.StatusCode),
		zap.Strings("fields", mapping.FieldNames()),
		zap.Strings("form", mapping.Form),
	)
	return fmt.Errorf("%w: %s", errRejected, resp.Status)
}
