package vault

import (
	"os"
	"path/filepath"
	"testing"
)

func TestArchiveFolderThenExtractMember(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir sub: %v", err)
	}
	topContent := []byte("top level file")
	nestedContent := []byte("nested file contents")
	if err := os.WriteFile(filepath.Join(src, "top.txt"), topContent, 0o644); err != nil {
		t.Fatalf("writing top.txt: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "nested.txt"), nestedContent, 0o644); err != nil {
		t.Fatalf("writing nested.txt: %v", err)
	}

	zipPath := filepath.Join(t.TempDir(), "archive.zip")
	entries, err := archiveFolder(src, zipPath)
	if err != nil {
		t.Fatalf("archiveFolder: %v", err)
	}

	var sawTop, sawSub, sawNested bool
	for _, e := range entries {
		switch e.RelativePath {
		case "top.txt":
			sawTop = true
			if e.SizeBytes != int64(len(topContent)) {
				t.Fatalf("top.txt size mismatch: got %d", e.SizeBytes)
			}
		case "sub":
			sawSub = true
			if !e.IsDirectory {
				t.Fatalf("expected sub to be marked as a directory")
			}
		case "sub/nested.txt":
			sawNested = true
		}
	}
	if !sawTop || !sawSub || !sawNested {
		t.Fatalf("expected top.txt, sub, and sub/nested.txt in entries, got %+v", entries)
	}

	outPath := filepath.Join(t.TempDir(), "extracted.txt")
	if err := extractZipMember(zipPath, "sub/nested.txt", outPath); err != nil {
		t.Fatalf("extractZipMember: %v", err)
	}
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading extracted member: %v", err)
	}
	if string(got) != string(nestedContent) {
		t.Fatalf("extracted content mismatch: got %q want %q", got, nestedContent)
	}
}

func TestExtractMissingMemberFails(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatalf("writing a.txt: %v", err)
	}
	zipPath := filepath.Join(t.TempDir(), "archive.zip")
	if _, err := archiveFolder(src, zipPath); err != nil {
		t.Fatalf("archiveFolder: %v", err)
	}
	outPath := filepath.Join(t.TempDir(), "out.txt")
	if err := extractZipMember(zipPath, "does-not-exist.txt", outPath); err == nil {
		t.Fatalf("expected an error extracting a missing member")
	}
}
