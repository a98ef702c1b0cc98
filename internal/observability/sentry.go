// Package observability forwards unexpected failures to Sentry when a DSN
// is configured. Every call is a no-op otherwise.
package observability

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

var sentryEnabled atomic.Bool

type Options struct {
	DSN         string
	Environment string
	Release     string
}

// OptionsFromEnv reads CLOCKSPEEDS_SENTRY_DSN, falling back to SENTRY_DSN.
func OptionsFromEnv(release string) Options {
	dsn := strings.TrimSpace(os.Getenv("CLOCKSPEEDS_SENTRY_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("SENTRY_DSN"))
	}
	if env := strings.TrimSpace(os.Getenv("SENTRY_RELEASE")); env != "" {
		release = env
	}
	return Options{
		DSN:         dsn,
		Environment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
		Release:     release,
	}
}

// InitSentry returns a flush func to defer, and whether reporting is on.
func InitSentry(opts Options) (func(), bool, error) {
	if opts.DSN == "" {
		sentryEnabled.Store(false)
		return func() {}, false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		AttachStacktrace: true,
		BeforeSend:       dropCanceled,
	})
	if err != nil {
		sentryEnabled.Store(false)
		return func() {}, false, err
	}

	sentryEnabled.Store(true)
	return func() {
		sentry.Flush(2 * time.Second)
	}, true, nil
}

// dropCanceled discards events raised while shutting down.
func dropCanceled(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint != nil && errors.Is(hint.OriginalException, context.Canceled) {
		return nil
	}
	return event
}

func CaptureError(err error, tags map[string]string, extra map[string]interface{}) {
	if err == nil || !sentryEnabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetExtras(extra)
		sentry.CaptureException(err)
	})
}

func CaptureMessage(message string, tags map[string]string) {
	if !sentryEnabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetLevel(sentry.LevelWarning)
		sentry.CaptureMessage(message)
	})
}

func Enabled() bool {
	return sentryEnabled.Load()
}
