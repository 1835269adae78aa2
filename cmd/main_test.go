// File: cmd/main_test.go
package cmd

import (
	"bytes"
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/internal/config"
	"github.com/xkilldash9x/feedpilot/internal/observability"
)

// resetForTest provides the single source of truth for resetting test state.
func resetForTest(t *testing.T) {
	t.Helper()
	cfgFile = ""
	buildComponents = initializeComponents
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})
	t.Cleanup(func() {
		cfgFile = ""
		buildComponents = initializeComponents
	})
}

// executeCommand runs a fresh command tree with args and captures its output.
func executeCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// stubComponents makes buildComponents return comps without touching the
// browser, store or LLM providers.
func stubComponents(t *testing.T, comps *components) *componentOptions {
	t.Helper()
	var seen componentOptions
	buildComponents = func(ctx context.Context, cfg config.Interface, logger *zap.Logger, opts componentOptions) (*components, error) {
		seen = opts
		return comps, nil
	}
	return &seen
}
