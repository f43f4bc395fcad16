package extractor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"

	"duskrelay/internal/config"
)

// fakeExecCommand builds an ExecCommandFunc that re-invokes the test binary
// itself with a marker env var, a classic Go subprocess-faking idiom (see
// os/exec's own TestHelperProcess pattern) — avoids depending on any real
// extractor binary being present in the sandbox.
func fakeExecCommand(script string) ExecCommandFunc {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := []string{"-test.run=TestHelperProcess", "--"}
		cs = append(cs, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "HELPER_SCRIPT="+script)
		return cmd
	}
}

// TestHelperProcess is not a real test; it's the fake subprocess body,
// gated on GO_WANT_HELPER_PROCESS so a normal `go test` run skips it.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("HELPER_SCRIPT") {
	case "version":
		fmt.Fprintln(os.Stdout, "2024.11.01")
	case "metadata":
		fmt.Fprintln(os.Stdout, `{"title":"Demo Clip","duration":42,"uploader":"demo","extractor":"generic","formats":[{"format_id":"137","vcodec":"avc1","height":1080,"width":1920,"tbr":2500.0}]}`)
	case "fetch-ok":
		fmt.Fprintln(os.Stdout, "10.0|500.0|00:10|1000|10000")
		fmt.Fprintln(os.Stdout, "55.0|520.0|00:05|5500|10000")
		fmt.Fprintln(os.Stdout, "100.0|0|00:00|10000|10000")
	case "fetch-merge":
		fmt.Fprintln(os.Stdout, "50.0|500.0|00:10|5000|10000")
		fmt.Fprintln(os.Stdout, "100.0|0|00:00|10000|10000")
		fmt.Fprintln(os.Stdout, "[Merger] Merging formats into \"out.mp4\"")
		fmt.Fprintln(os.Stdout, "100.0|0|00:00|10000|10000")
	case "fetch-fail":
		fmt.Fprintln(os.Stderr, "network unreachable")
		os.Exit(1)
	}
	os.Exit(0)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Extractor.BinaryName = "media-extractor"
	cfg.Extractor.CacheTTLMinutes = 5
	cfg.Extractor.CacheMaxEntries = 64
	cfg.Concurrency.ExtractorRetries = 1
	return cfg
}

func newTestDriver(t *testing.T, script string) *Driver {
	t.Helper()
	d := New(testConfig(), nil)
	d.SetExecCommand(fakeExecCommand(script))
	return d
}

func TestResolveBinaryPathFallsBackToBareName(t *testing.T) {
	cfg := testConfig()
	cfg.Extractor.AppManagedDir = t.TempDir()
	cfg.Extractor.PackagedDir = t.TempDir()
	d := New(cfg, nil)
	if d.binaryPath != cfg.Extractor.BinaryName {
		t.Fatalf("expected bare-name fallback %q, got %q", cfg.Extractor.BinaryName, d.binaryPath)
	}
}

func TestCheckUpdateDetectsNewVersion(t *testing.T) {
	d := newTestDriver(t, "version")
	info, err := d.CheckUpdate(context.Background(), "2024.12.01")
	if err != nil {
		t.Fatalf("CheckUpdate: %v", err)
	}
	if info.Version != "2024.11.01" || !info.UpdateAvailable {
		t.Fatalf("expected update available from 2024.11.01 to 2024.12.01, got %+v", info)
	}
}

func TestCheckUpdateNoneAvailable(t *testing.T) {
	d := newTestDriver(t, "version")
	info, err := d.CheckUpdate(context.Background(), "2024.11.01")
	if err != nil {
		t.Fatalf("CheckUpdate: %v", err)
	}
	if info.UpdateAvailable {
		t.Fatalf("expected no update available when versions match")
	}
}
