package form_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/rules"
)

func TestRegisterRejectsBadNames(t *testing.T) {
	t.Parallel()

	e := form.New(form.WithDefaults(map[string]any{"username": "Batman"}))

	_, err := e.Register("", rules.Set{})
	if !errors.Is(err, form.ErrInvalidName) {
		t.Fatalf("expected %v, got %v", form.ErrInvalidName, err)
	}

	_, err = e.Register("social..twitter", rules.Set{})
	if !errors.Is(err, form.ErrInvalidName) {
		t.Fatalf("expected %v, got %v", form.ErrInvalidName, err)
	}

	_, err = e.Register("username.first", rules.Set{})
	if !errors.Is(err, form.ErrInvalidPath) {
		t.Fatalf("expected %v, got %v", form.ErrInvalidPath, err)
	}

	_, err = e.Register("social.twitter", rules.Set{DisabledWhen: `channel = ""`})
	if !errors.Is(err, form.ErrInvalidRule) {
		t.Fatalf("expected %v, got %v", form.ErrInvalidRule, err)
	}

	b, err := e.Register("phNumbers[0].number", rules.Set{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff("phNumbers.0.number", b.Name()); diff != "" {
		t.Fatalf("b.Name() mismatch (-want +got):\n%s", diff)
	}
}

func TestReRegisterKeepsValue(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New(form.WithDefaults(map[string]any{"username": ""}))
	b, err := e.Register("username", rules.Set{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Change(ctx, "Bruce"); err != nil {
		t.Fatalf("Change returned error: %v", err)
	}

	_, err = e.Register("username", rules.Set{MinLength: rules.MinLength(8, "too short")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff("Bruce", e.GetValue("username")); diff != "" {
		t.Fatalf("e.GetValue(\"username\") mismatch (-want +got):\n%s", diff)
	}

	ok, err := e.Trigger(ctx, "username")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok to be false")
	}
	if diff := cmp.Diff("too short", e.State().Errors.Message("username")); diff != "" {
		t.Fatalf("e.State().Errors.Message(\"username\") mismatch (-want +got):\n%s", diff)
	}
}

func TestRequiredShortCircuitsOtherRules(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	var calls atomic.Int32
	e := form.New()
	_, err := e.Register("username", rules.Set{
		Required: rules.Required("Username is required"),
		Pattern:  rules.MustPattern(`^[A-Z]`, "must be capitalised"),
		Validate: []rules.Named{rules.Async("lookup", func(ctx context.Context, v any) (rules.Verdict, error) {
			calls.Add(1)
			return rules.Pass(), nil
		})},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := e.Trigger(ctx, "username")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok to be false")
	}

	state := e.State()
	if state.IsValid {
		t.Fatalf("expected state.IsValid to be false")
	}
	if diff := cmp.Diff(rules.KindRequired, state.Errors["username"].Kind); diff != "" {
		t.Fatalf("state.Errors[\"username\"].Kind mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("Username is required", state.Errors.Message("username")); diff != "" {
		t.Fatalf("state.Errors.Message(\"username\") mismatch (-want +got):\n%s", diff)
	}
	if got := calls.Load(); got != 0 {
		t.Fatalf("expected calls.Load() to be zero, got %v", got)
	}
}

func TestPatternSkippedForEmptyValue(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New(form.WithDefaults(map[string]any{"email": ""}))
	_, err := e.Register("email", rules.Set{
		Pattern: rules.MustPattern(`^[\w.-]+@([\w-]+\.)+[\w-]{2,4}$`, "Invalid email format"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := e.Trigger(ctx, "email")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok to be true")
	}
	if !e.State().IsValid {
		t.Fatalf("expected e.State().IsValid to be true")
	}

	if err := e.SetValue(ctx, "email", "nope", form.SetValueOptions{ShouldValidate: true}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	if diff := cmp.Diff("Invalid email format", e.State().Errors.Message("email")); diff != "" {
		t.Fatalf("e.State().Errors.Message(\"email\") mismatch (-want +got):\n%s", diff)
	}
}

func TestValidatePredicatesRunInDeclarationOrder(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	var mu sync.Mutex
	var ran []string
	record := func(name string) {
		mu.Lock()
		ran = append(ran, name)
		mu.Unlock()
	}

	e := form.New(form.WithDefaults(map[string]any{"email": "user@baddomain.com"}))
	_, err := e.Register("email", rules.Set{Validate: []rules.Named{
		rules.Sync("notAdmin", func(v any) rules.Verdict {
			record("notAdmin")
			return rules.Check(v != "admin@example.com", "Enter a different email address")
		}),
		rules.Async("notBlacklisted", func(ctx context.Context, v any) (rules.Verdict, error) {
			record("notBlacklisted")
			time.Sleep(5 * time.Millisecond)
			return rules.Fail("This domain is not supported"), nil
		}),
		rules.Async("emailAvailable", func(ctx context.Context, v any) (rules.Verdict, error) {
			record("emailAvailable")
			return rules.Pass(), nil
		}),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := e.Trigger(ctx, "email")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok to be false")
	}
	if diff := cmp.Diff([]string{"notAdmin", "notBlacklisted"}, ran); diff != "" {
		t.Fatalf("ran mismatch (-want +got):\n%s", diff)
	}

	v := e.State().Errors["email"]
	if diff := cmp.Diff(rules.KindValidate, v.Kind); diff != "" {
		t.Fatalf("v.Kind mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("notBlacklisted", v.Rule); diff != "" {
		t.Fatalf("v.Rule mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("This domain is not supported", v.Message); diff != "" {
		t.Fatalf("v.Message mismatch (-want +got):\n%s", diff)
	}
}

func TestValueAsNumberRejectsText(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New(form.WithDefaults(map[string]any{"age": 0}))
	b, err := e.Register("age", rules.Set{Required: rules.Required("Age is required"), ValueAs: rules.ValueAsNumber})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := b.Change(ctx, "abc"); err != nil {
		t.Fatalf("Change returned error: %v", err)
	}
	ok, err := e.Trigger(ctx, "age")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok to be false")
	}
	if e.State().IsValid {
		t.Fatalf("expected e.State().IsValid to be false")
	}
	if diff := cmp.Diff("Age is required", e.State().Errors.Message("age")); diff != "" {
		t.Fatalf("e.State().Errors.Message(\"age\") mismatch (-want +got):\n%s", diff)
	}

	if err := b.Change(ctx, "42"); err != nil {
		t.Fatalf("Change returned error: %v", err)
	}
	if diff := cmp.Diff(float64(42), b.Value()); diff != "" {
		t.Fatalf("b.Value() mismatch (-want +got):\n%s", diff)
	}
	ok, err = e.Trigger(ctx, "age")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok to be true")
	}
}

func TestDisabledFieldSkipsValidationAndValues(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New(form.WithDefaults(map[string]any{
		"channel": "",
		"social":  map[string]any{"twitter": ""},
	}))
	_, err := e.Register("channel", rules.Set{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	twitter, err := e.Register("social.twitter", rules.Set{
		Required:     rules.Required("Enter twitter profile"),
		DisabledWhen: `channel == ""`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := e.SetValue(ctx, "channel", "", form.SetValueOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	ok, err := e.Trigger(ctx, "social.twitter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok to be true")
	}
	if !twitter.Disabled() {
		t.Fatalf("expected twitter.Disabled() to be true")
	}
	if v, failing := twitter.Error(); failing {
		t.Fatalf("disabled field kept an error: %v", v)
	}
	if diff := cmp.Diff(map[string]any{"channel": "", "social": map[string]any{}}, e.GetValues()); diff != "" {
		t.Fatalf("e.GetValues() mismatch (-want +got):\n%s", diff)
	}
	if twitter.Value() != nil {
		t.Fatalf("expected twitter.Value() to be nil, got %v", twitter.Value())
	}

	if err := e.SetValue(ctx, "channel", "codevolution", form.SetValueOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	ok, err = e.Trigger(ctx, "social.twitter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok to be false")
	}
	if diff := cmp.Diff("Enter twitter profile", e.State().Errors.Message("social.twitter")); diff != "" {
		t.Fatalf("e.State().Errors.Message(\"social.twitter\") mismatch (-want +got):\n%s", diff)
	}

	if err := e.SetValue(ctx, "channel", "", form.SetValueOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	if e.State().Errors.Has("social.twitter") {
		t.Fatalf("expected e.State().Errors.Has(\"social.twitter\") to be false")
	}
}

func TestAsyncEmailAvailability(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New(form.WithDefaults(map[string]any{"email": ""}))
	_, err := e.Register("email", rules.Set{Validate: []rules.Named{
		rules.Async("emailAvailable", func(ctx context.Context, v any) (rules.Verdict, error) {
			select {
			case <-time.After(2 * time.Millisecond):
			case <-ctx.Done():
				return rules.Verdict{}, ctx.Err()
			}
			return rules.Check(v != "taken@x.com", "Email already exists"), nil
		}),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := e.SetValue(ctx, "email", "taken@x.com", form.SetValueOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	ok, err := e.Trigger(ctx, "email")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok to be false")
	}
	if diff := cmp.Diff("Email already exists", e.State().Errors.Message("email")); diff != "" {
		t.Fatalf("e.State().Errors.Message(\"email\") mismatch (-want +got):\n%s", diff)
	}

	if err := e.SetValue(ctx, "email", "free@x.com", form.SetValueOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	ok, err = e.Trigger(ctx, "email")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok to be true")
	}
	if e.State().Errors.Has("email") {
		t.Fatalf("expected e.State().Errors.Has(\"email\") to be false")
	}
}

func TestStaleAsyncResultIsDiscarded(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	started := make(chan struct{})
	release := make(chan struct{})

	e := form.New(form.WithDefaults(map[string]any{"email": ""}))
	_, err := e.Register("email", rules.Set{Validate: []rules.Named{
		rules.Async("emailAvailable", func(ctx context.Context, v any) (rules.Verdict, error) {
			if v == "slow@x.com" {
				close(started)
				<-release
				return rules.Fail("Email already exists"), nil
			}
			return rules.Pass(), nil
		}),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.SetValue(ctx, "email", "slow@x.com", form.SetValueOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}

	type result struct {
		ok  bool
		err error
	}
	first := make(chan result, 1)
	go func() {
		ok, err := e.Trigger(ctx, "email")
		first <- result{ok, err}
	}()
	<-started

	if !e.State().IsValidating {
		t.Fatalf("expected e.State().IsValidating to be true")
	}
	if err := e.SetValue(ctx, "email", "fast@x.com", form.SetValueOptions{ShouldValidate: true}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	if e.State().Errors.Has("email") {
		t.Fatalf("expected e.State().Errors.Has(\"email\") to be false")
	}

	close(release)
	res := <-first
	if res.err != nil {
		t.Fatalf("Trigger returned error: %v", res.err)
	}
	if !res.ok {
		t.Fatalf("expected res.ok to be true")
	}

	state := e.State()
	if state.Errors.Has("email") {
		t.Fatalf("expected state.Errors.Has(\"email\") to be false")
	}
	if state.IsValidating {
		t.Fatalf("expected state.IsValidating to be false")
	}
	if !state.IsValid {
		t.Fatalf("expected state.IsValid to be true")
	}
}

func TestValidatorTimeout(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New(form.WithValidatorTimeout(20 * time.Millisecond))
	_, err := e.Register("email", rules.Set{Validate: []rules.Named{
		rules.Async("hang", func(ctx context.Context, v any) (rules.Verdict, error) {
			<-ctx.Done()
			return rules.Verdict{}, ctx.Err()
		}),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.SetValue(ctx, "email", "bruce@wayne.com", form.SetValueOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}

	ok, err := e.Trigger(ctx, "email")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok to be false")
	}
	if diff := cmp.Diff(rules.KindTimeout, e.State().Errors["email"].Kind); diff != "" {
		t.Fatalf("e.State().Errors[\"email\"].Kind mismatch (-want +got):\n%s", diff)
	}
}

func TestTriggerCancelledContext(t *testing.T) {
	t.Parallel()

	e := form.New()
	_, err := e.Register("email", rules.Set{Required: rules.Required("required")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Trigger(ctx, "email")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected %v, got %v", context.Canceled, err)
	}

	_, err = e.Trigger(context.Background(), "missing")
	if !errors.Is(err, form.ErrUnknownField) {
		t.Fatalf("expected %v, got %v", form.ErrUnknownField, err)
	}
}

func TestTriggerAllRunsFieldsConcurrently(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New(form.WithDefaults(map[string]any{"username": "Batman", "email": "bruce@wayne.com"}))

	var inFlight, peak atomic.Int32
	slow := rules.Async("slow", func(ctx context.Context, v any) (rules.Verdict, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return rules.Pass(), nil
	})
	_, err := e.Register("username", rules.Set{Validate: []rules.Named{slow}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = e.Register("email", rules.Set{Validate: []rules.Named{slow}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := e.Trigger(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok to be true")
	}
	if diff := cmp.Diff(int32(2), peak.Load()); diff != "" {
		t.Fatalf("peak.Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestModeOnBlur(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New(form.WithMode(form.ModeOnBlur))
	b, err := e.Register("username", rules.Set{Required: rules.Required("Username is required")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b.Focus()
	if err := b.Change(ctx, ""); err != nil {
		t.Fatalf("Change returned error: %v", err)
	}
	if e.State().Errors.Has("username") {
		t.Fatalf("expected e.State().Errors.Has(\"username\") to be false")
	}

	if err := b.Blur(ctx); err != nil {
		t.Fatalf("Blur returned error: %v", err)
	}
	state := e.State()
	if !state.Errors.Has("username") {
		t.Fatalf("expected state.Errors.Has(\"username\") to be true")
	}
	if !state.Touched("username") {
		t.Fatalf("expected state.Touched(\"username\") to be true")
	}

	if err := b.Change(ctx, "Batman"); err != nil {
		t.Fatalf("Change returned error: %v", err)
	}
	if !e.State().Errors.Has("username") {
		t.Fatalf("expected e.State().Errors.Has(\"username\") to be true")
	}

	if err := b.Blur(ctx); err != nil {
		t.Fatalf("Blur returned error: %v", err)
	}
	if e.State().Errors.Has("username") {
		t.Fatalf("expected e.State().Errors.Has(\"username\") to be false")
	}
	if !e.State().IsValid {
		t.Fatalf("expected e.State().IsValid to be true")
	}
}

func TestModeOnTouched(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New(form.WithMode(form.ModeOnTouched))
	b, err := e.Register("channel", rules.Set{Required: rules.Required("Channel is required")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := b.Change(ctx, ""); err != nil {
		t.Fatalf("Change returned error: %v", err)
	}
	if e.State().Errors.Has("channel") {
		t.Fatalf("expected e.State().Errors.Has(\"channel\") to be false")
	}
	if err := b.Blur(ctx); err != nil {
		t.Fatalf("Blur returned error: %v", err)
	}
	if !e.State().Errors.Has("channel") {
		t.Fatalf("expected e.State().Errors.Has(\"channel\") to be true")
	}
	if err := b.Change(ctx, "codevolution"); err != nil {
		t.Fatalf("Change returned error: %v", err)
	}
	if e.State().Errors.Has("channel") {
		t.Fatalf("expected e.State().Errors.Has(\"channel\") to be false")
	}
}

func TestReValidateAfterSubmitAttempt(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New()
	b, err := e.Register("username", rules.Set{Required: rules.Required("Username is required")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := b.Change(ctx, ""); err != nil {
		t.Fatalf("Change returned error: %v", err)
	}
	if e.State().Errors.Has("username") {
		t.Fatalf("expected e.State().Errors.Has(\"username\") to be false")
	}

	if err := e.HandleSubmit(nil, nil)(ctx); err != nil {
		t.Fatalf("HandleSubmit returned error: %v", err)
	}
	if !e.State().Errors.Has("username") {
		t.Fatalf("expected e.State().Errors.Has(\"username\") to be true")
	}

	if err := b.Change(ctx, "Batman"); err != nil {
		t.Fatalf("Change returned error: %v", err)
	}
	if e.State().Errors.Has("username") {
		t.Fatalf("expected e.State().Errors.Has(\"username\") to be false")
	}
}

func TestSanitizerAppliesToBindingInput(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New(form.WithSanitizer(upperSanitizer{}))
	b, err := e.Register("channel", rules.Set{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := b.Change(ctx, "<b>x</b>"); err != nil {
		t.Fatalf("Change returned error: %v", err)
	}
	if diff := cmp.Diff("clean:<b>x</b>", b.Value()); diff != "" {
		t.Fatalf("b.Value() mismatch (-want +got):\n%s", diff)
	}

	if err := e.SetValue(ctx, "channel", "<b>y</b>", form.SetValueOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	if diff := cmp.Diff("<b>y</b>", b.Value()); diff != "" {
		t.Fatalf("b.Value() mismatch (-want +got):\n%s", diff)
	}
}

type upperSanitizer struct{}

func (upperSanitizer) Sanitize(field, raw string) string { return "clean:" + raw }

func TestSetValueHonoursEachOption(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New(form.WithDefaults(map[string]any{"username": "Batman"}))
	_, err := e.Register("username", rules.Set{Required: rules.Required("Username is required")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := e.SetValue(ctx, "username", "Robin", form.SetValueOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	state := e.State()
	if state.IsDirty {
		t.Fatalf("expected state.IsDirty to be false")
	}
	if state.Touched("username") {
		t.Fatalf("expected state.Touched(\"username\") to be false")
	}
	if state.Errors.Has("username") {
		t.Fatalf("expected state.Errors.Has(\"username\") to be false")
	}

	if err := e.SetValue(ctx, "username", "", form.SetValueOptions{
		ShouldValidate: true,
		ShouldTouch:    true,
		ShouldDirty:    true,
	}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	state = e.State()
	if !state.IsDirty {
		t.Fatalf("expected state.IsDirty to be true")
	}
	if !state.Dirty("username") {
		t.Fatalf("expected state.Dirty(\"username\") to be true")
	}
	if !state.Touched("username") {
		t.Fatalf("expected state.Touched(\"username\") to be true")
	}
	if diff := cmp.Diff("Username is required", state.Errors.Message("username")); diff != "" {
		t.Fatalf("state.Errors.Message(\"username\") mismatch (-want +got):\n%s", diff)
	}

	if err := e.SetValue(ctx, "username", "Batman", form.SetValueOptions{ShouldDirty: true}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	if e.State().IsDirty {
		t.Fatalf("expected e.State().IsDirty to be false")
	}
}

func TestGetValuesSelectors(t *testing.T) {
	t.Parallel()

	e := form.New(form.WithDefaults(map[string]any{
		"username": "Batman",
		"social":   map[string]string{"twitter": "", "facebook": "fb"},
		"phNumbers": []map[string]any{
			{"number": "555"},
		},
	}))

	if diff := cmp.Diff("fb", e.GetValue("social.facebook")); diff != "" {
		t.Fatalf("e.GetValue(\"social.facebook\") mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("555", e.GetValue("phNumbers.0.number")); diff != "" {
		t.Fatalf("e.GetValue(\"phNumbers.0.number\") mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"Batman", "fb", nil}, e.GetValuesOf("username", "social.facebook", "missing")); diff != "" {
		t.Fatalf("e.GetValuesOf(\"username\", \"social.facebook\", \"missing\") mismatch (-want +got):\n%s", diff)
	}

	social := e.GetValue("social").(map[string]any)
	social["facebook"] = "changed"
	all := e.GetValues()
	all["username"] = "changed"
	if diff := cmp.Diff("fb", e.GetValue("social.facebook")); diff != "" {
		t.Fatalf("e.GetValue(\"social.facebook\") mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("Batman", e.GetValue("username")); diff != "" {
		t.Fatalf("e.GetValue(\"username\") mismatch (-want +got):\n%s", diff)
	}
}

func TestRevisionIsInstanceScoped(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	a := form.New()
	b := form.New()
	_, err := a.Register("username", rules.Set{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.SetValue(ctx, "username", "Batman", form.SetValueOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}

	if diff := cmp.Diff(uint64(2), a.State().Revision); diff != "" {
		t.Fatalf("a.State().Revision mismatch (-want +got):\n%s", diff)
	}
	if got := b.State().Revision; got != 0 {
		t.Fatalf("expected b.State().Revision to be zero, got %v", got)
	}
}

func TestIsValidRequiresValidation(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New(form.WithDefaults(map[string]any{"username": "Batman"}))
	if !e.State().IsValid {
		t.Fatalf("expected e.State().IsValid to be true")
	}

	_, err := e.Register("username", rules.Set{Required: rules.Required("required")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = e.Register("note", rules.Set{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.State().IsValid {
		t.Fatalf("expected e.State().IsValid to be false")
	}

	ok, err := e.Trigger(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok to be true")
	}
	if !e.State().IsValid {
		t.Fatalf("expected e.State().IsValid to be true")
	}

	if err := e.SetValue(ctx, "username", "Bruce", form.SetValueOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	if e.State().IsValid {
		t.Fatalf("expected e.State().IsValid to be false")
	}
}

func TestSetErrorAndServerPayload(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New(form.WithDefaults(map[string]any{"username": "Batman", "email": "bruce@wayne.com"}))
	_, err := e.Register("username", rules.Set{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = e.Register("email", rules.Set{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mapping := e.ApplyServerPayload(map[string][]string{
		"/body/email":      {"Email already exists"},
		"non_field_errors": {"Try again later"},
	})
	if diff := cmp.Diff([]string{"email"}, mapping.FieldNames()); diff != "" {
		t.Fatalf("mapping.FieldNames() mismatch (-want +got):\n%s", diff)
	}

	state := e.State()
	if diff := cmp.Diff(rules.KindServer, state.Errors["email"].Kind); diff != "" {
		t.Fatalf("state.Errors[\"email\"].Kind mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Try again later"}, state.FormErrors); diff != "" {
		t.Fatalf("state.FormErrors mismatch (-want +got):\n%s", diff)
	}
	if state.IsValid {
		t.Fatalf("expected state.IsValid to be false")
	}

	e.ClearErrors("email")
	state = e.State()
	if state.Errors.Has("email") {
		t.Fatalf("expected state.Errors.Has(\"email\") to be false")
	}
	if diff := cmp.Diff([]string{"Try again later"}, state.FormErrors); diff != "" {
		t.Fatalf("state.FormErrors mismatch (-want +got):\n%s", diff)
	}

	if err := e.SetError("root.server", rules.Violation{Message: "Server unreachable"}); err != nil {
		t.Fatalf("SetError returned error: %v", err)
	}
	if diff := cmp.Diff(rules.KindManual, e.State().Errors["root.server"].Kind); diff != "" {
		t.Fatalf("e.State().Errors[\"root.server\"].Kind mismatch (-want +got):\n%s", diff)
	}
	if err := e.SetError("", rules.Violation{}); !errors.Is(err, form.ErrInvalidName) {
		t.Fatalf("expected %v, got %v", form.ErrInvalidName, err)
	}

	e.ClearErrors()
	if got := e.State().Errors; len(got) != 0 {
		t.Fatalf("expected e.State().Errors to be empty, got %v", got)
	}
	if got := e.State().FormErrors; len(got) != 0 {
		t.Fatalf("expected e.State().FormErrors to be empty, got %v", got)
	}

	ok, err := e.Trigger(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok to be true")
	}
}

func TestChangesMergePatch(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New(form.WithDefaults(map[string]any{
		"username": "Batman",
		"age":      0,
		"social":   map[string]any{"twitter": "", "facebook": ""},
	}))

	patch, err := e.Changes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(map[string]any{}, decodePatch(t, patch)); diff != "" {
		t.Fatalf("initial patch mismatch (-want +got):\n%s", diff)
	}

	if err := e.SetValue(ctx, "username", "Bruce", form.SetValueOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	if err := e.SetValue(ctx, "social.facebook", "fb", form.SetValueOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}

	patch, err = e.Changes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]any{
		"username": "Bruce",
		"social":   map[string]any{"facebook": "fb"},
	}
	if diff := cmp.Diff(want, decodePatch(t, patch)); diff != "" {
		t.Fatalf("patch mismatch (-want +got):\n%s", diff)
	}
}

func decodePatch(t *testing.T, patch []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := sonic.Unmarshal(patch, &out); err != nil {
		t.Fatalf("decode patch %s: %v", patch, err)
	}
	return out
}

func TestSubmitErrorUnwraps(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	err := error(&form.SubmitError{Err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected %q in %q", "boom", err.Error())
	}
}

func TestPanickingPredicateDoesNotWedgeSubmit(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New()
	_, err := e.Register("username", rules.Set{Validate: []rules.Named{
		rules.Sync("explode", func(any) rules.Verdict { panic("boom") }),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var invalid int
	submit := e.HandleSubmit(func(context.Context, map[string]any) error {
		t.Fatalf("onValid should not run")
		return nil
	}, func(context.Context, form.Errors) { invalid++ })

	for i := 0; i < 2; i++ {
		if err := submit(ctx); err != nil {
			t.Fatalf("submit %d returned error: %v", i+1, err)
		}
	}
	if invalid != 2 {
		t.Fatalf("expected onInvalid twice, got %d", invalid)
	}

	state := e.State()
	if state.IsSubmitting || state.IsValidating || len(state.Validating) != 0 {
		t.Fatalf("engine left busy: %+v", state)
	}
	v := state.Errors["username"]
	if v.Kind != rules.KindValidate || v.Rule != "explode" {
		t.Fatalf("unexpected violation: %+v", v)
	}
	if !errors.Is(v.Cause, rules.ErrPredicatePanic) {
		t.Fatalf("expected ErrPredicatePanic cause, got %v", v.Cause)
	}
}

func TestPanickingAsyncPredicateSettles(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	e := form.New()
	_, err := e.Register("email", rules.Set{Validate: []rules.Named{
		rules.Async("lookup", func(context.Context, any) (rules.Verdict, error) { panic("lookup exploded") }),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := e.Trigger(ctx, "email")
	if err != nil {
		t.Fatalf("Trigger returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected Trigger to report failure")
	}
	state := e.State()
	if state.IsValidating {
		t.Fatalf("engine still validating: %+v", state)
	}
	if v := state.Errors["email"]; !errors.Is(v.Cause, rules.ErrPredicatePanic) {
		t.Fatalf("expected ErrPredicatePanic cause, got %+v", v)
	}
}
