package integration

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// TestStandaloneBinaryRunsOutsideRepo builds the CLI and runs the commands that
// need neither a config file nor provider credentials from an empty directory.
func TestStandaloneBinaryRunsOutsideRepo(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary copy/exec test is unix-focused")
	}
	goModPathBytes, err := exec.Command("go", "env", "GOMOD").Output()
	if err != nil {
		t.Fatalf("go env GOMOD: %v", err)
	}
	goModPath := strings.TrimSpace(string(goModPathBytes))
	if goModPath == "" {
		t.Fatalf("go env GOMOD returned empty")
	}
	repoRoot := filepath.Dir(goModPath)

	outside := t.TempDir()
	binaryPath := filepath.Join(outside, "docquery")

	build := exec.Command("go", "build", "-o", binaryPath, "./cmd/docquery")
	build.Dir = repoRoot
	build.Env = os.Environ()
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("go build: %v\n%s", err, string(out))
	}

	env := append(os.Environ(),
		"XDG_CONFIG_HOME="+t.TempDir(),
		"DOCQUERY_RATE_LIMIT_MAX_REQUESTS=7",
		"DOCQUERY_RATE_LIMIT_WINDOW=30s",
	)
	run := func(args ...string) string {
		t.Helper()
		cmd := exec.Command(binaryPath, args...)
		cmd.Dir = outside
		cmd.Env = env
		out, err := cmd.Output()
		if err != nil {
			t.Fatalf("%v failed: %v\n%s", args, err, string(out))
		}
		return string(out)
	}

	if out := run("version"); !strings.HasPrefix(out, "docquery ") {
		t.Fatalf("unexpected version output: %q", out)
	}
	run("--help")

	var status struct {
		MaxRequests   int     `json:"max_requests"`
		WindowSeconds float64 `json:"window_seconds"`
		CurrentCount  int     `json:"current_count"`
		CanProceed    bool    `json:"can_proceed"`
	}
	if err := json.Unmarshal([]byte(run("limiter", "status", "--output-format", "json")), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.MaxRequests != 7 || status.WindowSeconds != 30 || status.CurrentCount != 0 || !status.CanProceed {
		t.Fatalf("unexpected status: %+v", status)
	}

	burst := run("limiter", "burst", "-n", "3", "--interval", "0s")
	if !strings.Contains(burst, "Current requests: 3/7") {
		t.Fatalf("unexpected burst output:\n%s", burst)
	}
}
