package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/rules"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newUsersServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/users/1":
			fmt.Fprint(w, `{"id":1,"name":"Leanne Graham","email":"Sincere@april.biz"}`)
		case r.URL.Path == "/users" && r.URL.Query().Get("email") == "Sincere@april.biz":
			fmt.Fprint(w, `[{"id":1}]`)
		case r.URL.Path == "/users":
			fmt.Fprint(w, `[]`)
		case r.URL.Path == "/channels":
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"errors":{"body.channel":["Channel name is taken"],"":["Try again later"]}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "formstate.yaml")
	if err := os.WriteFile(path, []byte("mode: onTouched\nlog:\n  level: debug\noffline: true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FORMSTATE_MODE", "onChange")

	cfg, err := loadConfig([]string{"--config", path, "--timeout", "5s"})
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.Mode != form.ModeOnChange {
		t.Fatalf("environment should override the file, got mode %q", cfg.Mode)
	}
	if cfg.ValidatorTimeout != 5*time.Second {
		t.Fatalf("flag timeout not applied, got %s", cfg.ValidatorTimeout)
	}
	if cfg.LogLevel != "debug" || !cfg.Offline {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.ReValidateMode != form.ModeOnChange || !cfg.ResetOnSuccess {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfigRejectsUnknownMode(t *testing.T) {
	if _, err := loadConfig([]string{"--mode", "sometimes"}); err == nil {
		t.Fatalf("expected unknown mode to fail")
	}
}

func TestBuildFormFetchesDefaults(t *testing.T) {
	server := newUsersServer(t)
	ctx := testContext(t)
	cfg := Config{
		Mode:             form.ModeOnBlur,
		ReValidateMode:   form.ModeOnChange,
		ValidatorTimeout: time.Second,
		DefaultsURL:      server.URL + "/users/1",
		APIURL:           server.URL,
	}

	engine, _, attached, err := buildForm(cfg, server.Client(), zap.NewNop())
	if err != nil {
		t.Fatalf("buildForm returned error: %v", err)
	}
	if err := engine.Ready(ctx); err != nil {
		t.Fatalf("Ready returned error: %v", err)
	}
	if got := engine.GetValue("email"); got != "test_Sincere@april.biz" {
		t.Fatalf("expected test_ prefixed email, got %#v", got)
	}
	if got := attached.Arrays["phNumbers"].Len(); got != 1 {
		t.Fatalf("expected one phone number entry, got %d", got)
	}
	if !engine.IsDisabled("social.twitter") {
		t.Fatalf("twitter should start disabled")
	}

	email := attached.Fields["email"]
	if err := email.Change(ctx, "Sincere@april.biz"); err != nil {
		t.Fatalf("Change returned error: %v", err)
	}
	if err := email.Blur(ctx); err != nil {
		t.Fatalf("Blur returned error: %v", err)
	}
	if msg := engine.State().Errors.Message("email"); msg != "Email already exists" {
		t.Fatalf("expected availability failure, got %q", msg)
	}
}

func TestAvailabilityReportsLookupErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := availability{baseURL: server.URL, client: server.Client()}.check(context.Background(), "bruce@wayne.com")
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestSubmitterAppliesServerErrors(t *testing.T) {
	server := newUsersServer(t)
	engine := form.New(form.WithDefaults(map[string]any{"channel": "codevolution"}))
	if _, err := engine.Register("channel", rules.Set{Required: rules.Required("Channel is required")}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	sub := submitter{url: server.URL + "/channels", client: server.Client(), engine: engine, logger: zap.NewNop()}
	err := sub.submit(testContext(t), engine.GetValues())
	if !errors.Is(err, errRejected) {
		t.Fatalf("expected errRejected, got %v", err)
	}
	state := engine.State()
	if v := state.Errors["channel"]; v.Kind != rules.KindServer || v.Message != "Channel name is taken" {
		t.Fatalf("unexpected channel violation: %+v", v)
	}
	if len(state.FormErrors) != 1 || state.FormErrors[0] != "Try again later" {
		t.Fatalf("unexpected form errors: %v", state.FormErrors)
	}
}

func TestSubmitterPrintsWithoutURL(t *testing.T) {
	var out bytes.Buffer
	sub := submitter{out: &out, logger: zap.NewNop()}
	if err := sub.submit(context.Background(), map[string]any{"username": "Batman"}); err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	if !strings.Contains(out.String(), `"username": "Batman"`) {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestNewLoggerWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formstate.log")
	logger, closeLogger, err := newLogger(Config{LogLevel: "info", LogFile: path}, nil)
	if err != nil {
		t.Fatalf("newLogger returned error: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("session finished", zap.Int("submitCount", 1))
	closeLogger()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(raw), "hidden") || !strings.Contains(string(raw), `"submitCount":1`) {
		t.Fatalf("unexpected log contents: %s", raw)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, _, err := newLogger(Config{LogLevel: "chatty"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
}
