package api

import (
	"os"
	"path/filepath"
	"testing"

	"duskrelay/internal/config"
	"duskrelay/internal/health"
	"duskrelay/internal/logging"
	"duskrelay/internal/scheduler"
	"duskrelay/internal/vault"
)

func testCore(t *testing.T) *Core {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{}
	cfg.General.DataRoot = filepath.Join(root, "data")
	cfg.General.VaultRoot = filepath.Join(root, "vault")
	cfg.General.ScratchRoot = filepath.Join(root, "scratch")
	cfg.Concurrency.TotalSlots = 3
	cfg.Concurrency.NativeSlots = 2
	cfg.Vault.MinPINLength = 4
	cfg.Extractor.BinaryName = "media-extractor"
	cfg.Extractor.CacheTTLMinutes = 5
	cfg.Extractor.CacheMaxEntries = 64

	core, err := New(cfg, logging.New("error", false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { core.Close() })
	return core
}

func TestVaultLifecycleThroughCore(t *testing.T) {
	c := testCore(t)

	status, err := c.VaultStatus()
	if err != nil {
		t.Fatalf("VaultStatus: %v", err)
	}
	if status.Setup {
		t.Fatalf("expected fresh vault to be unset up")
	}

	if err := c.VaultSetup("1234"); err != nil {
		t.Fatalf("VaultSetup: %v", err)
	}
	if err := c.VaultUnlock("1234"); err != nil {
		t.Fatalf("VaultUnlock: %v", err)
	}
	if err := c.VaultLock(); err != nil {
		t.Fatalf("VaultLock: %v", err)
	}
}

func TestSchedulerThroughCore(t *testing.T) {
	c := testCore(t)
	c.EnqueueDownload("job-1", "https://example.com/a", health.EnginePNDESafe, scheduler.PriorityNormal, nil)
	status := c.SchedulerStatus()
	if status.QueueLength == 0 && status.ActiveCount == 0 {
		t.Fatalf("expected the enqueued job to be tracked, got %+v", status)
	}
}

func TestAddVaultFileThroughCore(t *testing.T) {
	c := testCore(t)
	if err := c.VaultSetup("1234"); err != nil {
		t.Fatalf("VaultSetup: %v", err)
	}
	if err := c.VaultUnlock("1234"); err != nil {
		t.Fatalf("VaultUnlock: %v", err)
	}

	src := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(src, []byte("hello vault"), 0o644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}

	f, err := c.AddVaultFile(src, "clip.mp4", vault.FileTypeVideo, nil, false)
	if err != nil {
		t.Fatalf("AddVaultFile: %v", err)
	}
	if f.OriginalName != "clip.mp4" {
		t.Fatalf("unexpected record: %+v", f)
	}
}
