package form

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/internal/valuepath"
	"github.com/goliatone/go-formstate/pkg/condition"
	"github.com/goliatone/go-formstate/pkg/condition/expr"
	"github.com/goliatone/go-formstate/pkg/rules"
)

// Engine owns the values, validation results and submission flags of one
// form instance. All methods are safe for concurrent use. Validators,
// providers, submit handlers and subscribers always run without the engine
// lock held.
type Engine struct {
	mu sync.Mutex

	mode           Mode
	reValidateMode Mode
	timeout        time.Duration
	logger         *zap.Logger
	newKey         func() string
	sanitizer      Sanitizer
	conditions     condition.Evaluator
	extras         map[string]any
	tags           *validator.Validate
	resetOnSuccess bool

	seed     map[string]any
	provider Provider
	loadCtx  context.Context
	ready    chan struct{}
	loading  bool
	initErr  error

	values     map[string]any
	initial    map[string]any
	fields     map[string]*field
	order      []string
	errors     map[string]rules.Violation
	formErrors []string
	touched    map[string]bool
	dirty      map[string]bool
	arrays     map[string]*arrayState

	submitting  bool
	submitted   bool
	successful  bool
	submitCount int
	revision    uint64

	watchers  subscribers[WatchFunc]
	stateSubs subscribers[StateFunc]
}

type field struct {
	name  string
	rules rules.Set

	// gen advances on every value change and validation start; a result is
	// applied only if gen still matches the value it captured.
	gen       uint64
	validated bool
	pending   int
}

var valueEq = cmp.Options{cmpopts.EquateNaNs(), cmpopts.EquateEmpty()}

// equalValues compares two value-tree nodes. cmp panics on structs with
// unexported fields; those fall back to reflect.DeepEqual.
func equalValues(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = reflect.DeepEqual(a, b)
		}
	}()
	return cmp.Equal(a, b, valueEq)
}

// New builds an engine. When a defaults provider is configured the engine
// starts loading immediately; mutating operations return ErrNotReady until
// it settles.
func New(opts ...Option) *Engine {
	e := &Engine{
		mode:           ModeOnSubmit,
		reValidateMode: ModeOnChange,
		timeout:        DefaultValidatorTimeout,
		logger:         zap.NewNop(),
		newKey:         uuid.NewString,
		conditions:     expr.New(),
		loadCtx:        context.Background(),
		ready:          make(chan struct{}),
		fields:         make(map[string]*field),
		errors:         make(map[string]rules.Violation),
		touched:        make(map[string]bool),
		dirty:          make(map[string]bool),
		arrays:         make(map[string]*arrayState),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	e.initial = valuepath.NormalizeTree(e.seed)
	e.values = valuepath.CloneMap(e.initial)
	e.seed = nil

	if e.provider == nil {
		close(e.ready)
		return e
	}
	e.loading = true
	go e.resolveDefaults(e.loadCtx)
	return e
}

// Register adds a field or replaces the rules of an existing one. The
// current value is never reset by registration.
func (e *Engine) Register(name string, set rules.Set) (*Binding, error) {
	path, err := valuepath.Normalize(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidName, err)
	}

	e.mu.Lock()
	if err := valuepath.Check(e.values, path); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	if set.DisabledWhen != "" {
		if _, err := e.conditions.Eval(path, set.DisabledWhen, e.conditionContextLocked()); err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: %q disabledWhen: %w", ErrInvalidRule, path, err)
		}
	}
	e.registerLocked(path, set)
	p := e.commitLocked(nil)
	e.mu.Unlock()

	p.dispatch()
	e.logger.Debug("field registered", zap.String("field", path))
	return &Binding{engine: e, name: path}, nil
}

// Unregister removes a field together with its flags and error. The value
// stays in the value tree.
func (e *Engine) Unregister(name string) {
	e.mu.Lock()
	if _, ok := e.fields[name]; !ok {
		e.mu.Unlock()
		return
	}
	e.dropFieldLocked(name)
	p := e.commitLocked(nil)
	e.mu.Unlock()
	p.dispatch()
}

// Binding returns the binding of a registered field.
func (e *Engine) Binding(name string) (*Binding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.fields[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return &Binding{engine: e, name: name}, nil
}

// FieldNames lists registered fields in registration order.
func (e *Engine) FieldNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

// IsDisabled reports whether name is currently excluded from validation and
// submission.
func (e *Engine) IsDisabled(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disabledLocked(name)
}

// State returns the current snapshot.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) registerLocked(path string, set rules.Set) *field {
	if f, ok := e.fields[path]; ok {
		f.rules = set
		f.gen++
		f.validated = false
		return f
	}
	f := &field{name: path, rules: set}
	e.fields[path] = f
	e.order = append(e.order, path)
	return f
}

func (e *Engine) dropFieldLocked(name string) {
	if f, ok := e.fields[name]; ok {
		f.gen++
	}
	delete(e.fields, name)
	delete(e.errors, name)
	delete(e.touched, name)
	delete(e.dirty, name)
	for i, n := range e.order {
		if n == name {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// usable reports ErrNotReady while loading and the defaults failure once
// loading has settled unsuccessfully.
func (e *Engine) usable() error {
	select {
	case <-e.ready:
	default:
		return ErrNotReady
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initErr
}

func (e *Engine) conditionContextLocked() condition.Context {
	return condition.Context{Values: e.values, Extras: e.extras}
}

func (e *Engine) disabledLocked(name string) bool {
	f, ok := e.fields[name]
	if !ok {
		return false
	}
	if f.rules.Disabled {
		return true
	}
	if f.rules.DisabledWhen == "" {
		return false
	}
	disabled, err := e.conditions.Eval(name, f.rules.DisabledWhen, e.conditionContextLocked())
	if err != nil {
		e.logger.Warn("disabledWhen evaluation failed", zap.String("field", name), zap.Error(err))
		return false
	}
	return disabled
}

// writeLocked stores value at name and invalidates every field living at or
// beneath it. It returns the affected field names.
func (e *Engine) writeLocked(name string, value any) ([]string, error) {
	if err := valuepath.Set(e.values, name, valuepath.NormalizeValue(value)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	e.syncArraysLocked(name)
	var affected []string
	for _, path := range e.order {
		if withinEither(path, name) {
			f := e.fields[path]
			f.gen++
			f.validated = false
			affected = append(affected, path)
		}
	}
	return affected, nil
}

func (e *Engine) refreshDirtyLocked(name string) {
	current, _ := valuepath.Get(e.values, name)
	initial, _ := valuepath.Get(e.initial, name)
	if equalValues(initial, current) {
		delete(e.dirty, name)
		return
	}
	e.dirty[name] = true
}

func (e *Engine) visibleErrorsLocked() Errors {
	if len(e.errors) == 0 {
		return nil
	}
	out := make(Errors, len(e.errors))
	for name, v := range e.errors {
		if e.disabledLocked(name) {
			continue
		}
		out[name] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// validLocked holds when no enabled field carries an error and every enabled
// field with rules has been validated since its last change.
func (e *Engine) validLocked() bool {
	if len(e.formErrors) > 0 {
		return false
	}
	for name := range e.errors {
		if !e.disabledLocked(name) {
			return false
		}
	}
	for _, name := range e.order {
		f := e.fields[name]
		if f.rules.IsZero() || f.validated {
			continue
		}
		if e.disabledLocked(name) {
			continue
		}
		return false
	}
	return true
}

func (e *Engine) visibleValuesLocked() map[string]any {
	out := valuepath.CloneMap(e.values)
	for _, name := range e.order {
		if e.disabledLocked(name) {
			valuepath.Delete(out, name)
		}
	}
	return out
}

func (e *Engine) snapshotLocked() State {
	var validating []string
	for _, name := range e.order {
		if e.fields[name].pending > 0 {
			validating = append(validating, name)
		}
	}
	dirty := sortedKeys(e.dirty)
	return State{
		Errors:             e.visibleErrorsLocked(),
		FormErrors:         append([]string(nil), e.formErrors...),
		DirtyFields:        dirty,
		TouchedFields:      sortedKeys(e.touched),
		Validating:         validating,
		IsDirty:            len(dirty) > 0,
		IsValid:            e.validLocked(),
		IsValidating:       len(validating) > 0,
		IsLoading:          e.loading,
		IsReady:            !e.loading && e.initErr == nil,
		IsSubmitting:       e.submitting,
		IsSubmitted:        e.submitted,
		IsSubmitSuccessful: e.successful,
		SubmitCount:        e.submitCount,
		Revision:           e.revision,
	}
}

// publication carries everything subscribers need once the lock is released.
type publication struct {
	state     State
	stateSubs []StateFunc
	change    *Change
	values    map[string]any
	watchers  []WatchFunc
}

// commitLocked advances the revision and captures the notifications owed
// for this mutation. Pass a change for value mutations to notify watchers.
func (e *Engine) commitLocked(change *Change) publication {
	e.revision++
	p := publication{stateSubs: e.stateSubs.list()}
	if len(p.stateSubs) > 0 {
		p.state = e.snapshotLocked()
	}
	if change != nil {
		p.watchers = e.watchers.list()
		if len(p.watchers) > 0 {
			p.change = change
			p.values = e.visibleValuesLocked()
		}
	}
	return p
}

func (p publication) dispatch() {
	for _, fn := range p.stateSubs {
		fn(p.state)
	}
	if p.change == nil {
		return
	}
	for i, fn := range p.watchers {
		values := p.values
		if i < len(p.watchers)-1 {
			values = valuepath.CloneMap(p.values)
		}
		fn(values, *p.change)
	}
}
