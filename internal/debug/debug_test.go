package debug

import (
	"bytes"
	"os"
	"testing"
)

func withCleanState(t *testing.T) {
	t.Helper()
	prevMode := MCPMode
	prevEnable := EnableDebug
	prevEnv := os.Getenv("DEBUG")
	t.Cleanup(func() {
		MCPMode = prevMode
		EnableDebug = prevEnable
		os.Setenv("DEBUG", prevEnv)
		SetOutput(nil)
	})
	MCPMode = false
	EnableDebug = "false"
	os.Unsetenv("DEBUG")
	SetOutput(nil)
}

func TestDisabledByDefault(t *testing.T) {
	withCleanState(t)
	if Enabled() {
		t.Fatal("debug should be disabled without a flag or DEBUG env")
	}
}

func TestEnvEnables(t *testing.T) {
	withCleanState(t)
	os.Setenv("DEBUG", "1")
	if !Enabled() {
		t.Fatal("DEBUG=1 should enable debug output")
	}
}

func TestMCPModeSuppressesStdio(t *testing.T) {
	withCleanState(t)
	EnableDebug = "true"
	SetOutput(os.Stderr)
	SetMCPMode(true)
	if Enabled() {
		t.Fatal("MCP mode must suppress stdio-bound debug output")
	}
}

func TestMCPModeAllowsFileWriter(t *testing.T) {
	withCleanState(t)
	SetMCPMode(true)
	var buf bytes.Buffer
	SetOutput(&buf)
	if !Enabled() {
		t.Fatal("a non-stdio writer should stay active in MCP mode")
	}
	Printf("resident=%d\n", 3)
	if got := buf.String(); got != "[DEBUG] resident=3\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestComponentTag(t *testing.T) {
	withCleanState(t)
	EnableDebug = "true"
	var buf bytes.Buffer
	SetOutput(&buf)
	LogPool("evicted %s\n", "/ws/demo")
	if got := buf.String(); got != "[DEBUG:POOL] evicted /ws/demo\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}
