package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/vk/burstci/internal/ctxlog"
)

// LogsEnvVar turns on dumping captured logs at the end of each test.
const LogsEnvVar = "BURSTCI_TEST_LOGS"

// Context returns a context carrying a debug logger that writes to the
// returned buffer. With BURSTCI_TEST_LOGS=true the buffer is dumped when the
// test finishes.
func Context(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()
	buf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() {
		if os.Getenv(LogsEnvVar) == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), buf.String())
		}
	})
	return ctxlog.WithLogger(context.Background(), logger), buf
}
