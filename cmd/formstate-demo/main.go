// Command formstate-demo runs the YouTube form in the terminal: defaults are
// fetched over HTTP, the email field is checked against a remote user list
// and the submitted values are printed or posted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/pkg/devtool"
	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/prompt"
	"github.com/goliatone/go-formstate/pkg/sanitize"
	"github.com/goliatone/go-formstate/pkg/schema"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "formstate-demo: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	logger, closeLogger, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}
	defer closeLogger()

	engine, def, attached, err := buildForm(cfg, http.DefaultClient, logger)
	if err != nil {
		return err
	}

	if cfg.Devtool {
		detach, err := devtool.Attach(engine, stderr, devtool.WithLogger(logger))
		if err != nil {
			return err
		}
		defer detach()
	}
	stopWatch := engine.Watch(func(values map[string]any, change form.Change) {
		logger.Debug("watch value", zap.String("field", change.Name), zap.String("kind", string(change.Kind)))
	})
	defer stopWatch()

	session, err := prompt.NewSession(engine, def, attached, prompt.NewSurveyDriver(stdout), prompt.WithLogger(logger))
	if err != nil {
		return err
	}
	sub := submitter{url: cfg.SubmitURL, client: http.DefaultClient, engine: engine, out: stdout, logger: logger}
	if err := session.Run(ctx, sub.submit); err != nil {
		if errors.Is(err, prompt.ErrAborted) {
			logger.Info("session aborted")
			return nil
		}
		if !engine.State().IsValid {
			_ = devtool.WriteTable(stderr, engine.State(), engine.FieldNames()...)
		}
		return err
	}

	state := engine.State()
	logger.Info("session finished",
		zap.Int("submitCount", state.SubmitCount),
		zap.Bool("reset", cfg.ResetOnSuccess),
	)
	return nil
}

// buildForm loads the embedded definition and wires it to a new engine using
// cfg.
func buildForm(cfg Config, client *http.Client, logger *zap.Logger) (*form.Engine, *schema.Definition, *schema.Attached, error) {
	def, err := schema.Load(youtubeDefinition)
	if err != nil {
		return nil, nil, nil, err
	}
	registry, err := youtubeRegistry(cfg, client)
	if err != nil {
		return nil, nil, nil, err
	}
	base, err := def.EngineOptions()
	if err != nil {
		return nil, nil, nil, err
	}
	opts := append(base,
		form.WithMode(cfg.Mode),
		form.WithReValidateMode(cfg.ReValidateMode),
		form.WithValidatorTimeout(cfg.ValidatorTimeout),
		form.WithDefaultsProvider(defaultsProvider(cfg, client)),
		form.WithSanitizer(sanitize.Strict(sanitize.WithTrimSpace())),
		form.WithResetOnSubmitSuccess(cfg.ResetOnSuccess),
		form.WithLogger(logger),
	)
	engine := form.New(opts...)
	attached, err := def.Apply(engine, registry)
	if err != nil {
		return nil, nil, nil, err
	}
	return engine, def, attached, nil
}
