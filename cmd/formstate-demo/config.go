package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/goliatone/go-formstate/pkg/form"
)

const envPrefix = "FORMSTATE"

// Config is the resolved demo configuration. Precedence: flags, then
// FORMSTATE_* environment variables, then formstate.yaml, then defaults.
type Config struct {
	Mode             form.Mode
	ReValidateMode   form.Mode
	ValidatorTimeout time.Duration
	DefaultsURL      string
	APIURL           string
	SubmitURL        string
	Offline          bool
	ResetOnSuccess   bool
	Devtool          bool
	LogLevel         string
	LogFile          string
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("formstate-demo", pflag.ContinueOnError)
	fs.String("config", "", "path to a formstate.yaml config file")
	fs.String("mode", string(form.ModeOnBlur), "validation mode: onSubmit, onBlur, onChange, onTouched, all")
	fs.String("revalidate-mode", string(form.ModeOnChange), "validation mode after the first submit attempt")
	fs.Duration("timeout", form.DefaultValidatorTimeout, "async validator timeout, 0 disables")
	fs.String("defaults-url", "https://jsonplaceholder.typicode.com/users/1", "endpoint returning the user used for default values")
	fs.String("api-url", "https://jsonplaceholder.typicode.com", "base URL of the email availability lookup")
	fs.String("submit-url", "", "endpoint receiving the submitted values as JSON; empty prints them")
	fs.Bool("offline", false, "use static defaults and skip network validators")
	fs.Bool("reset-on-success", true, "reset the form after a successful submit")
	fs.Bool("devtool", false, "stream state snapshots as JSON lines to stderr")
	fs.String("log.level", "info", "log level: debug, info, warn, error")
	fs.String("log.file", "", "write logs to this rotating file instead of stderr")
	return fs
}

// loadConfig parses args and merges them with the environment and the
// optional config file.
func loadConfig(args []string) (Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}
	v.SetConfigType("yaml")
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("formstate")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || v.GetString("config") != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	mode, ok := form.ParseMode(v.GetString("mode"))
	if !ok {
		return Config{}, fmt.Errorf("unknown mode %q", v.GetString("mode"))
	}
	reMode, ok := form.ParseMode(v.GetString("revalidate-mode"))
	if !ok {
		return Config{}, fmt.Errorf("unknown revalidate mode %q", v.GetString("revalidate-mode"))
	}
	timeout := v.GetDuration("timeout")
	if timeout < 0 {
		return Config{}, fmt.Errorf("timeout must not be negative, got %s", timeout)
	}

	return Config{
		Mode:             mode,
		ReValidateMode:   reMode,
		ValidatorTimeout: timeout,
		DefaultsURL:      v.GetString("defaults-url"),
		APIURL:           strings.TrimRight(v.GetString("api-url"), "/"),
		SubmitURL:        v.GetString("submit-url"),
		Offline:          v.GetBool("offline"),
		ResetOnSuccess:   v.GetBool("reset-on-success"),
		Devtool:          v.GetBool("devtool"),
		LogLevel:         v.GetString("log.level"),
		LogFile:          v.GetString("log.file"),
	}, nil
}
