package observability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("CLOCKSPEEDS_SENTRY_DSN", "")
	t.Setenv("SENTRY_DSN", "https://key@example.com/1")
	t.Setenv("SENTRY_ENVIRONMENT", "staging")
	t.Setenv("SENTRY_RELEASE", "")

	opts := OptionsFromEnv("v1.2.0")
	require.Equal(t, Options{DSN: "https://key@example.com/1", Environment: "staging", Release: "v1.2.0"}, opts)

	t.Setenv("CLOCKSPEEDS_SENTRY_DSN", "https://other@example.com/2")
	require.Equal(t, "https://other@example.com/2", OptionsFromEnv("").DSN)
}

func TestInitWithoutDSNDisables(t *testing.T) {
	flush, enabled, err := InitSentry(Options{})
	require.NoError(t, err)
	require.False(t, enabled)
	require.False(t, Enabled())
	flush()

	// no client, must not panic
	CaptureError(errors.New("boom"), map[string]string{"component": "test"}, nil)
	CaptureMessage("hello", nil)
}

func TestInitRejectsBadDSN(t *testing.T) {
	_, enabled, err := InitSentry(Options{DSN: "not a dsn"})
	require.Error(t, err)
	require.False(t, enabled)
}

func TestDropCanceled(t *testing.T) {
	event := &sentry.Event{Message: "x"}
	canceled := fmt.Errorf("apply: %w", context.Canceled)

	require.Nil(t, dropCanceled(event, &sentry.EventHint{OriginalException: canceled}))
	require.Same(t, event, dropCanceled(event, &sentry.EventHint{OriginalException: errors.New("other")}))
	require.Same(t, event, dropCanceled(event, nil))
}
