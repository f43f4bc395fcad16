package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "cfg.yml")
	cfg := strings.Join([]string{
		"version: 1",
		"general:",
		"  data_root: \"" + filepath.Join(tmp, "data") + "\"",
		"  vault_root: \"" + filepath.Join(tmp, "vault") + "\"",
		"  scratch_root: \"" + filepath.Join(tmp, "scratch") + "\"",
		"vault:",
		"  min_pin_length: 4",
	}, "\n")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestConfigPrint(t *testing.T) {
	cfgPath := writeTestConfig(t)
	if err := run(context.Background(), []string{"config", "print", "--config", cfgPath}); err != nil {
		t.Fatalf("config print: %v", err)
	}
}

func TestVaultSetupUnlockLock(t *testing.T) {
	cfgPath := writeTestConfig(t)
	ctx := context.Background()
	if err := run(ctx, []string{"vault", "setup", "--config", cfgPath, "--pin", "1234"}); err != nil {
		t.Fatalf("vault setup: %v", err)
	}
	if err := run(ctx, []string{"vault", "unlock", "--config", cfgPath, "--pin", "1234"}); err != nil {
		t.Fatalf("vault unlock: %v", err)
	}
	if err := run(ctx, []string{"vault", "lock", "--config", cfgPath}); err != nil {
		t.Fatalf("vault lock: %v", err)
	}
}

func TestStatusCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)
	if err := run(context.Background(), []string{"status", "--config", cfgPath}); err != nil {
		t.Fatalf("status: %v", err)
	}
}

func TestUnknownCommandErrors(t *testing.T) {
	if err := run(context.Background(), []string{"bogus"}); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}

func TestMinimizedFlagIsNoop(t *testing.T) {
	cfgPath := writeTestConfig(t)
	if err := run(context.Background(), []string{"--minimized", "status", "--config", cfgPath}); err != nil {
		t.Fatalf("--minimized status: %v", err)
	}
}
