package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Build flag for debug mode, overridable at build time:
// go build -ldflags "-X github.com/standardbeagle/csearch/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// MCPMode tracks whether we serve MCP over stdio. While true, nothing may be
// written to stdout or stderr: the protocol owns both streams.
var MCPMode = false

var (
	debugMutex  sync.Mutex
	debugOutput io.Writer
	debugFile   *os.File
)

// SetMCPMode suppresses all debug output to stdio for protocol compliance.
func SetMCPMode(enabled bool) {
	MCPMode = enabled
}

// SetOutput sets a custom writer for debug output. Pass nil to disable.
func SetOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// InitLogFile routes debug output to a timestamped file under the system
// temp directory and returns its path. Call CloseLogFile when done.
func InitLogFile() (string, error) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), "csearch-debug-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", time.Now().Format("2006-01-02T150405")))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	debugFile = file
	debugOutput = file
	return logPath, nil
}

// CloseLogFile closes the debug log file if one is open.
func CloseLogFile() error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugFile != nil {
		err := debugFile.Close()
		debugFile = nil
		debugOutput = nil
		return err
	}
	return nil
}

// Enabled reports whether debug logging is active. Always false in MCP mode
// unless a non-stdio writer was configured explicitly.
func Enabled() bool {
	if MCPMode {
		debugMutex.Lock()
		defer debugMutex.Unlock()
		return debugOutput != nil && debugOutput != os.Stdout && debugOutput != os.Stderr
	}
	if EnableDebug == "true" {
		return true
	}
	if os.Getenv("DEBUG") == "1" || os.Getenv("DEBUG") == "true" {
		return true
	}
	return false
}

func writer() io.Writer {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	return debugOutput
}

// Printf prints debug output when enabled and a writer is configured.
func Printf(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	w := writer()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG] "+format, args...)
}

// Log provides component-tagged debug logging.
func Log(component, format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	w := writer()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format, append([]interface{}{component}, args...)...)
}

// LogPool logs workspace handle pool activity.
func LogPool(format string, args ...interface{}) {
	Log("POOL", format, args...)
}

// LogCache logs response cache and resource store activity.
func LogCache(format string, args ...interface{}) {
	Log("CACHE", format, args...)
}

// LogSearch logs search coordination activity.
func LogSearch(format string, args ...interface{}) {
	Log("SEARCH", format, args...)
}

// LogMCP logs MCP surface activity.
func LogMCP(format string, args ...interface{}) {
	Log("MCP", format, args...)
}
