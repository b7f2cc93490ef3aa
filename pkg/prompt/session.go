// Package prompt drives a form from a terminal. A Session walks the fields
// of a schema.Definition, feeds answers through the engine's bindings, loops
// over field arrays and submits, re-asking whatever stays invalid.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/internal/valuepath"
	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/schema"
)

// Option configures a Session.
type Option func(*Session)

// WithMaxAttempts bounds how often one field, and the submission as a
// whole, may be retried. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithMaxEntries bounds how many entries the add-another loop may append to
// one field array.
func WithMaxEntries(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.maxEntries = n
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Session is one interactive pass over a form.
type Session struct {
	engine      *form.Engine
	def         *schema.Definition
	attached    *schema.Attached
	driver      Driver
	maxAttempts int
	maxEntries  int
	logger      *zap.Logger
}

// NewSession prepares a session over engine. attached is the result of
// applying def to engine.
func NewSession(engine *form.Engine, def *schema.Definition, attached *schema.Attached, driver Driver, opts ...Option) (*Session, error) {
	if engine == nil || def == nil || attached == nil || driver == nil {
		return nil, errors.New("prompt: engine, definition, attachment and driver are required")
	}
	s := &Session{
		engine:      engine,
		def:         def,
		attached:    attached,
		driver:      driver,
		maxAttempts: 3,
		maxEntries:  10,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Run waits for default values, asks every field, then submits through
// onValid. Fields reported invalid by the submission are asked again until
// the submission passes or the attempts run out.
func (s *Session) Run(ctx context.Context, onValid form.ValidFunc) error {
	if err := s.engine.Ready(ctx); err != nil {
		return err
	}
	if s.def.Title != "" {
		if err := s.driver.Info(ctx, s.def.Title); err != nil {
			return err
		}
	}

	for _, spec := range s.def.Fields {
		if err := s.ask(ctx, spec.Name, spec); err != nil {
			return err
		}
	}
	for _, arr := range s.def.Arrays {
		if err := s.askArray(ctx, arr); err != nil {
			return err
		}
	}

	for round := 1; ; round++ {
		var rejected form.Errors
		submit := s.engine.HandleSubmit(onValid, func(_ context.Context, errs form.Errors) {
			rejected = errs
		})
		if err := submit(ctx); err != nil {
			return err
		}
		if rejected == nil {
			s.logger.Debug("prompt session submitted", zap.Int("rounds", round))
			return s.driver.Info(ctx, "Submitted.")
		}
		if round >= s.maxAttempts {
			return fmt.Errorf("%w: %s", ErrTooManyAttempts, strings.Join(sortedNames(rejected), ", "))
		}
		if err := s.driver.Info(ctx, fmt.Sprintf("Please fix %d field(s).", len(rejected))); err != nil {
			return err
		}
		for _, name := range sortedNames(rejected) {
			spec, _ := s.specFor(name)
			err := s.ask(ctx, name, spec)
			if errors.Is(err, form.ErrUnknownField) {
				continue
			}
			if err != nil {
				return err
			}
		}
	}
}

// ask prompts for one field until its binding reports no error, or the
// attempts run out. Disabled fields are skipped.
func (s *Session) ask(ctx context.Context, name string, spec schema.FieldSpec) error {
	binding, err := s.engine.Binding(name)
	if err != nil {
		return err
	}
	if binding.Disabled() {
		return nil
	}

	label := spec.Label
	if label == "" {
		label = name
	}
	for attempt := 1; ; attempt++ {
		help := spec.Help
		if v, failing := binding.Error(); failing {
			help = v.Message
		}
		answer, err := s.driver.Input(ctx, InputConfig{
			Message: label,
			Default: display(binding.Value()),
			Help:    help,
		})
		if err != nil {
			return err
		}

		binding.Focus()
		if err := binding.Change(ctx, answer); err != nil {
			return err
		}
		if err := binding.Blur(ctx); err != nil {
			return err
		}

		v, failing := binding.Error()
		if !failing {
			return nil
		}
		s.logger.Debug("prompt answer rejected", zap.String("field", name), zap.Int("attempt", attempt))
		if attempt >= s.maxAttempts {
			return fmt.Errorf("%w: %s", ErrTooManyAttempts, name)
		}
		if err := s.driver.Info(ctx, fmt.Sprintf("%s: %s", label, v.Message)); err != nil {
			return err
		}
	}
}

func (s *Session) askArray(ctx context.Context, arr schema.ArraySpec) error {
	name, err := valuepath.Normalize(arr.Name)
	if err != nil {
		return err
	}
	fa, ok := s.attached.Arrays[name]
	if !ok {
		return fmt.Errorf("prompt: array %q is not attached", name)
	}
	label := arr.Label
	if label == "" {
		label = arr.Name
	}
	if err := s.driver.Info(ctx, label); err != nil {
		return err
	}

	for i := 0; i < fa.Len(); i++ {
		if err := s.askEntry(ctx, arr, i); err != nil {
			return err
		}
	}
	for added := 0; added < s.maxEntries; added++ {
		more, err := s.driver.Confirm(ctx, ConfirmConfig{Message: fmt.Sprintf("Add another entry to %s?", label)})
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		if err := fa.Append(blankEntry(arr)); err != nil {
			return err
		}
		if err := s.askEntry(ctx, arr, fa.Len()-1); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) askEntry(ctx context.Context, arr schema.ArraySpec, index int) error {
	for _, spec := range arr.Item {
		name := valuepath.AtIndex(arr.Name, index, spec.Name)
		entry := spec
		if entry.Label == "" {
			entry.Label = fmt.Sprintf("%s #%d", strings.TrimSpace(arr.Name+" "+spec.Name), index+1)
		}
		if err := s.ask(ctx, name, entry); err != nil {
			return err
		}
	}
	return nil
}

// specFor resolves the declaration behind a concrete field name, mapping
// array indices back to the item spec.
func (s *Session) specFor(name string) (schema.FieldSpec, bool) {
	if spec, ok := s.def.Field(name); ok {
		return spec, true
	}
	for _, arr := range s.def.Arrays {
		idx, rest, ok := valuepath.IndexUnder(name, arr.Name)
		if !ok {
			continue
		}
		if spec, ok := s.def.Field(valuepath.Join(arr.Name+".*", rest)); ok {
			if spec.Label == "" {
				spec.Label = fmt.Sprintf("%s #%d", strings.TrimSpace(arr.Name+" "+rest), idx+1)
			}
			return spec, true
		}
	}
	return schema.FieldSpec{}, false
}

func blankEntry(arr schema.ArraySpec) any {
	if len(arr.Item) == 1 && strings.TrimSpace(arr.Item[0].Name) == "" {
		return ""
	}
	entry := make(map[string]any, len(arr.Item))
	for _, spec := range arr.Item {
		_ = valuepath.Set(entry, spec.Name, "")
	}
	return entry
}

func display(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case time.Time:
		if typed.IsZero() {
			return ""
		}
		return typed.Format(time.DateOnly)
	default:
		return fmt.Sprint(typed)
	}
}

func sortedNames(errs form.Errors) []string {
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
