// Package devtool inspects a running form without being able to change it.
// Attach streams state snapshots and value changes as JSON lines; WriteTable
// renders a per-field summary.
package devtool

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/internal/valuepath"
	"github.com/goliatone/go-formstate/pkg/form"
)

// Observable is the read-only surface of a form the inspector needs.
// *form.Engine satisfies it.
type Observable interface {
	State() form.State
	GetValues() map[string]any
	SubscribeState(fn form.StateFunc) form.Unsubscribe
	Watch(fn form.WatchFunc) form.Unsubscribe
}

var _ Observable = (*form.Engine)(nil)

// Event is one JSON line written by Attach.
type Event struct {
	Kind   string         `json:"kind"`
	At     time.Time      `json:"at"`
	Change *form.Change   `json:"change,omitempty"`
	State  *form.State    `json:"state,omitempty"`
	Values map[string]any `json:"values,omitempty"`
}

const (
	EventSnapshot = "snapshot"
	EventState    = "state"
	EventChange   = "change"
)

// Option configures Attach.
type Option func(*inspector)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(i *inspector) {
		if now != nil {
			i.now = now
		}
	}
}

// WithLogger reports write failures.
func WithLogger(logger *zap.Logger) Option {
	return func(i *inspector) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithoutValues omits value snapshots from change events.
func WithoutValues() Option {
	return func(i *inspector) {
		i.values = false
	}
}

type inspector struct {
	mu     sync.Mutex
	w      io.Writer
	now    func() time.Time
	logger *zap.Logger
	values bool
}

// Attach writes an initial snapshot of target to w, then one line per state
// revision and per value change until the returned function is called.
func Attach(target Observable, w io.Writer, opts ...Option) (func(), error) {
	if target == nil {
		return nil, errors.New("devtool: target is nil")
	}
	if w == nil {
		return nil, errors.New("devtool: writer is nil")
	}
	ins := &inspector{w: w, now: time.Now, logger: zap.NewNop(), values: true}
	for _, opt := range opts {
		if opt != nil {
			opt(ins)
		}
	}

	state := target.State()
	if err := ins.emit(Event{Kind: EventSnapshot, State: &state, Values: target.GetValues()}); err != nil {
		return nil, err
	}

	stopState := target.SubscribeState(func(s form.State) {
		ins.write(Event{Kind: EventState, State: &s})
	})
	stopWatch := target.Watch(func(values map[string]any, change form.Change) {
		event := Event{Kind: EventChange, Change: &change}
		if ins.values {
			event.Values = values
		}
		ins.write(event)
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			stopState()
			stopWatch()
		})
	}, nil
}

func (i *inspector) write(event Event) {
	if err := i.emit(event); err != nil {
		i.logger.Warn("devtool write failed", zap.String("kind", event.Kind), zap.Error(err))
	}
}

func (i *inspector) emit(event Event) error {
	event.At = i.now()
	if event.Values != nil {
		event.Values = valuepath.JSONSafe(event.Values)
	}
	line, err := sonic.Marshal(event)
	if err != nil {
		return fmt.Errorf("devtool: encode %s event: %w", event.Kind, err)
	}
	line = append(line, '\n')

	i.mu.Lock()
	defer i.mu.Unlock()
	if _, err := i.w.Write(line); err != nil {
		return fmt.Errorf("devtool: write %s event: %w", event.Kind, err)
	}
	return nil
}

// WriteTable renders one markdown row per known field: its error, and its
// touched and dirty flags. Fields are the union of names, errors, touched and
// dirty sets.
func WriteTable(w io.Writer, state form.State, names ...string) error {
	seen := make(map[string]struct{})
	for _, group := range [][]string{names, state.TouchedFields, state.DirtyFields} {
		for _, name := range group {
			seen[name] = struct{}{}
		}
	}
	for name := range state.Errors {
		seen[name] = struct{}{}
	}
	rows := make([]string, 0, len(seen))
	for name := range seen {
		rows = append(rows, name)
	}
	sort.Strings(rows)

	table := tablewriter.NewTable(w, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Field", "Error", "Touched", "Dirty")
	for _, name := range rows {
		if err := table.Append(name, state.Errors.Message(name), mark(state.Touched(name)), mark(state.Dirty(name))); err != nil {
			return fmt.Errorf("devtool: table row %s: %w", name, err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("devtool: render table: %w", err)
	}
	if len(state.FormErrors) > 0 {
		if _, err := fmt.Fprintf(w, "\nForm errors: %s\n", strings.Join(state.FormErrors, "; ")); err != nil {
			return err
		}
	}
	return nil
}

func mark(ok bool) string {
	if ok {
		return "x"
	}
	return ""
}
