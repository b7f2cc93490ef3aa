package main

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/goliatone/go-formstate/pkg/defaults"
	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/rules"
	"github.com/goliatone/go-formstate/pkg/schema"
)

//go:embed youtube.yaml
var youtubeDefinition []byte

// youtubeDefaults builds the initial values from the fetched user: a fixed
// username and a test_ prefixed copy of the user's email.
func youtubeDefaults(now func() time.Time) defaults.Transform {
	return func(user map[string]any) (map[string]any, error) {
		email, _ := user["email"].(string)
		if email == "" {
			return nil, fmt.Errorf("user payload has no email")
		}
		return map[string]any{
			"username": "Batman",
			"email":    "test_" + email,
			"channel":  "",
			"social": map[string]any{
				"twitter":  "",
				"facebook": "",
			},
			"phoneNumbers": []any{"", ""},
			"phNumbers":    []any{map[string]any{"number": ""}},
			"age":          0,
			"dateOfBirth":  now().UTC().Truncate(24 * time.Hour),
		}, nil
	}
}

func defaultsProvider(cfg Config, client *http.Client) form.Provider {
	transform := youtubeDefaults(time.Now)
	if cfg.Offline {
		values, _ := transform(map[string]any{"email": "Sincere@april.biz"})
		return defaults.Static(values)
	}
	return defaults.HTTP(cfg.DefaultsURL,
		defaults.WithHTTPClient(client),
		defaults.WithTransform(transform),
	)
}

// availability asks the users endpoint whether an email is taken.
type availability struct {
	baseURL string
	client  *http.Client
}

func (a availability) check(ctx context.Context, value any) (rules.Verdict, error) {
	email, _ := value.(string)
	endpoint := a.baseURL + "/users?email=" + url.QueryEscape(email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return rules.Verdict{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return rules.Verdict{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return rules.Verdict{}, fmt.Errorf("availability lookup: unexpected status %s", resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return rules.Verdict{}, err
	}
	var users []map[string]any
	if err := sonic.Unmarshal(raw, &users); err != nil {
		return rules.Verdict{}, fmt.Errorf("availability lookup: %w", err)
	}
	return rules.Check(len(users) == 0, "Email already exists"), nil
}

func youtubeRegistry(cfg Config, client *http.Client) (*schema.Registry, error) {
	emailAvailable := rules.Sync("emailAvailable", func(any) rules.Verdict { return rules.Pass() })
	if !cfg.Offline {
		emailAvailable = rules.Async("emailAvailable", availability{baseURL: cfg.APIURL, client: client}.check)
	}
	return schema.NewRegistry(
		rules.Sync("notAdmin", func(value any) rules.Verdict {
			return rules.Check(value != "admin@example.com", "Enter a different email address")
		}),
		rules.Sync("notBlacklisted", func(value any) rules.Verdict {
			s, _ := value.(string)
			return rules.Check(!strings.HasSuffix(s, "baddomain.com"), "This domain is not supported")
		}),
		emailAvailable,
	)
}
