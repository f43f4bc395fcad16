package extractor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestFetchLatestVersionParsesReleaseIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tag_name":"2025.01.01","assets":[]}`)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Extractor.ReleaseIndexURL = srv.URL
	d := New(cfg, nil)

	version, err := d.FetchLatestVersion(context.Background())
	if err != nil {
		t.Fatalf("FetchLatestVersion: %v", err)
	}
	if version != "2025.01.01" {
		t.Fatalf("expected tag 2025.01.01, got %q", version)
	}
}

func TestFetchLatestVersionRequiresConfiguredURL(t *testing.T) {
	d := New(testConfig(), nil)
	if _, err := d.FetchLatestVersion(context.Background()); err == nil {
		t.Fatalf("expected an error with no release_index_url configured")
	}
}

func TestApplyUpdateInstallsAssetAndFixesExecBit(t *testing.T) {
	assetName := platformAssetName("media-extractor")
	const payload = "#!/bin/sh\necho fake-extractor\n"

	mux := http.NewServeMux()
	mux.HandleFunc("/release.json", func(w http.ResponseWriter, r *http.Request) {
		body := fmt.Sprintf(`{"tag_name":"2025.02.02","assets":[{"name":%q,"browser_download_url":"%s/asset"}]}`,
			assetName, "http://"+r.Host)
		fmt.Fprint(w, body)
	})
	mux.HandleFunc("/asset", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, payload)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	appDir := t.TempDir()
	cfg := testConfig()
	cfg.Extractor.ReleaseIndexURL = srv.URL + "/release.json"
	cfg.Extractor.AppManagedDir = appDir
	d := New(cfg, nil)

	info, err := d.ApplyUpdate(context.Background())
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if info.Version != "2025.02.02" || info.UpdateAvailable {
		t.Fatalf("unexpected result: %+v", info)
	}

	installedPath := filepath.Join(appDir, "media-extractor")
	data, err := os.ReadFile(installedPath)
	if err != nil {
		t.Fatalf("reading installed binary: %v", err)
	}
	if string(data) != payload {
		t.Fatalf("unexpected installed contents: %q", data)
	}
	if d.binaryPath != installedPath {
		t.Fatalf("expected Driver.binaryPath to switch to %q, got %q", installedPath, d.binaryPath)
	}
	if runtime.GOOS != "windows" {
		fi, err := os.Stat(installedPath)
		if err != nil {
			t.Fatalf("stat installed binary: %v", err)
		}
		if fi.Mode()&0o111 == 0 {
			t.Fatalf("expected installed binary to be executable, got mode %v", fi.Mode())
		}
	}
}

func TestApplyUpdateFailsWhenAssetMissing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/release.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tag_name":"2025.02.02","assets":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig()
	cfg.Extractor.ReleaseIndexURL = srv.URL + "/release.json"
	cfg.Extractor.AppManagedDir = t.TempDir()
	d := New(cfg, nil)

	if _, err := d.ApplyUpdate(context.Background()); err == nil {
		t.Fatalf("expected an error when no matching asset is published")
	}
}
