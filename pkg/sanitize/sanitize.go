// Package sanitize strips markup from raw text input before it reaches a form
// engine.
package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictOnce   sync.Once
	strictPolicy *bluemonday.Policy
)

func policy() *bluemonday.Policy {
	strictOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// Text removes every HTML element from string input and decodes the entities
// the policy escapes, so "Bruce & <b>Wayne</b>" becomes "Bruce & Wayne".
type Text struct {
	skip map[string]struct{}
	trim bool
}

// Option configures Text.
type Option func(*Text)

// WithSkipFields leaves the named fields untouched.
func WithSkipFields(names ...string) Option {
	return func(t *Text) {
		for _, name := range names {
			if name = strings.TrimSpace(name); name != "" {
				t.skip[name] = struct{}{}
			}
		}
	}
}

// WithTrimSpace trims surrounding whitespace after sanitising.
func WithTrimSpace() Option {
	return func(t *Text) {
		t.trim = true
	}
}

// Strict returns a sanitiser backed by bluemonday's strict policy.
func Strict(opts ...Option) *Text {
	t := &Text{skip: make(map[string]struct{})}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Sanitize cleans raw for the given field.
func (t *Text) Sanitize(field, raw string) string {
	if t == nil || raw == "" {
		return raw
	}
	if _, ok := t.skip[field]; ok {
		return raw
	}
	cleaned := html.UnescapeString(policy().Sanitize(raw))
	if t.trim {
		cleaned = strings.TrimSpace(cleaned)
	}
	return cleaned
}
