package privileged

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Neol00/ClockSpeeds/internal/logging"
	"github.com/stretchr/testify/require"
)

func fakePkexec(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pkexec")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestRenderWrite(t *testing.T) {
	require.Equal(t,
		`printf '%s\n' 'performance' > '/sys/cpu0/scaling_governor'`,
		RenderWrite(Text("/sys/cpu0/scaling_governor", "performance")))

	require.Equal(t,
		`printf '\001\000\377' > '/sys/kernel/ryzen_smu_drv/smu_args'`,
		RenderWrite(Bytes("/sys/kernel/ryzen_smu_drv/smu_args", []byte{1, 0, 255})))
}

func TestQuoteEscapesSingleQuotes(t *testing.T) {
	require.Equal(t, `'it'\''s'`, Quote("it's"))
}

func TestApplyAsRootWritesDirectly(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "scaling_max_freq")
	binary := filepath.Join(dir, "smu_args")

	r := NewRunner(logging.NewTestLogger(io.Discard), WithRootCheck(func() bool { return true }))
	err := r.Apply(context.Background(), []Write{
		Text(text, "3000000"),
		Bytes(binary, []byte{0x10, 0x27, 0, 0}),
	})
	require.NoError(t, err)

	got, err := os.ReadFile(text)
	require.NoError(t, err)
	require.Equal(t, "3000000\n", string(got))

	got, err = os.ReadFile(binary)
	require.NoError(t, err)
	require.Equal(t, []byte{0x10, 0x27, 0, 0}, got)
}

func TestApplyThroughPkexec(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "governor")
	binary := filepath.Join(dir, "smu_args")

	r := NewRunner(logging.NewTestLogger(io.Discard),
		WithRootCheck(func() bool { return false }),
		WithPkexec(fakePkexec(t, `exec "$@"`)))
	err := r.Apply(context.Background(), []Write{
		Text(text, "schedutil"),
		Bytes(binary, []byte{0x53, 0x0a, 0x00, 0xff}),
	})
	require.NoError(t, err)

	got, err := os.ReadFile(text)
	require.NoError(t, err)
	require.Equal(t, "schedutil\n", string(got))

	got, err = os.ReadFile(binary)
	require.NoError(t, err)
	require.Equal(t, []byte{0x53, 0x0a, 0x00, 0xff}, got)
}

func TestExitCodesAreClassified(t *testing.T) {
	logger := logging.NewTestLogger(io.Discard)
	notRoot := WithRootCheck(func() bool { return false })

	r := NewRunner(logger, notRoot, WithPkexec(fakePkexec(t, "exit 126")))
	require.ErrorIs(t, r.RunShell(context.Background(), []string{"true"}), ErrCanceled)

	r = NewRunner(logger, notRoot, WithPkexec(fakePkexec(t, "exit 127")))
	require.ErrorIs(t, r.RunShell(context.Background(), []string{"true"}), ErrCommandNotFound)

	r = NewRunner(logger, notRoot, WithPkexec(fakePkexec(t, "echo boom >&2; exit 1")))
	err := r.RunShell(context.Background(), []string{"true"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")

	r = NewRunner(logger, notRoot, WithPkexec(filepath.Join(t.TempDir(), "missing")))
	require.Error(t, r.RunShell(context.Background(), []string{"true"}))
}

func TestApplyWithNoWritesIsNoop(t *testing.T) {
	r := NewRunner(logging.NewTestLogger(io.Discard), WithPkexec("/nonexistent"))
	require.NoError(t, r.Apply(context.Background(), nil))
}
