package vault

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"duskrelay/internal/health"
	"duskrelay/internal/logging"
	"duskrelay/internal/pnde"
	"duskrelay/internal/router"
)

// DownloadStatus mirrors pnde.Status for adapter-emitted events, plus the
// two vault-specific terminal phases spec.md §4.9 calls for.
type DownloadStatus string

const (
	StatusStarting   DownloadStatus = "starting"
	StatusDownloading DownloadStatus = "downloading"
	StatusEncrypting DownloadStatus = "encrypting"
	StatusCompleted  DownloadStatus = "completed"
	StatusFailed     DownloadStatus = "failed"
	StatusCancelled  DownloadStatus = "cancelled"
)

// DownloadEvent is what VaultDownload streams to its caller, translating
// the scratch-path engine's Progress events into vault-download events per
// spec.md §4.9's step 3.
type DownloadEvent struct {
	ID              string
	Progress        float64
	Status          DownloadStatus
	DownloadedBytes int64
	TotalBytes      int64
	Message         string
}

// ExtractorFetcher is the subset of the extractor driver the adapter needs:
// fetch a URL to a local path, streaming progress. Declared here (rather
// than importing internal/extractor directly) only to keep this file's
// doc-comment honest about the dependency; the concrete type passed in by
// callers is always *extractor.Driver.
type ExtractorFetcher interface {
	Fetch(ctx context.Context, id, url, destPath string, progressCh chan<- pnde.Progress) pnde.Result
}

// Adapter is the Vault Download Adapter (C9): it stages a URL to an
// ephemeral scratch file via either a direct HTTP GET or the extractor,
// then encrypts the scratch file into the vault and
// unconditionally erases it.
type Adapter struct {
	vault     *Vault
	router    *router.Router
	extractor ExtractorFetcher
	health    *health.Registry
	client    *http.Client
	log       *logging.Logger
	scratchRoot string
}

func NewAdapter(v *Vault, r *router.Router, extractor ExtractorFetcher, reg *health.Registry, client *http.Client, scratchRoot string, log *logging.Logger) *Adapter {
	return &Adapter{
		vault:       v,
		router:      r,
		extractor:   extractor,
		health:      reg,
		client:      client,
		log:         log,
		scratchRoot: scratchRoot,
	}
}

// Download runs spec.md §4.9's full sequence for one URL and streams
// DownloadEvents on eventsCh until a terminal status is sent. The scratch
// directory is always a vault-owned random subdirectory, never the system
// temp directory, so an aborted run leaves no half-encrypted trace outside
// the vault's own tree.
func (a *Adapter) Download(ctx context.Context, id, url, name string, fileType FileType, deleteOriginal bool, eventsCh chan<- DownloadEvent) (File, error) {
	scratchDir := filepath.Join(a.scratchRoot, uuid.NewString())
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return File{}, fmt.Errorf("vault: creating scratch dir: %w", err)
	}
	defer a.cleanupScratchDir(scratchDir)

	scratchFile := filepath.Join(scratchDir, "download")
	emit(eventsCh, DownloadEvent{ID: id, Status: StatusStarting})

	if err := a.fetch(ctx, id, url, scratchFile, eventsCh); err != nil {
		emit(eventsCh, DownloadEvent{ID: id, Status: StatusFailed, Message: err.Error()})
		return File{}, err
	}

	emit(eventsCh, DownloadEvent{ID: id, Status: StatusEncrypting})
	rec, err := a.vault.AddFile(scratchFile, name, fileType, nil, deleteOriginal)
	if err != nil {
		emit(eventsCh, DownloadEvent{ID: id, Status: StatusFailed, Message: err.Error()})
		return File{}, err
	}

	emit(eventsCh, DownloadEvent{ID: id, Status: StatusCompleted, Progress: 100, DownloadedBytes: rec.SizeBytes, TotalBytes: rec.SizeBytes})
	return rec, nil
}

// fetch implements step 2's heuristic: media-platform URLs go straight to
// the extractor; everything else attempts a direct HTTP GET first, falling
// back to the extractor on failure.
func (a *Adapter) fetch(ctx context.Context, id, url, destPath string, eventsCh chan<- DownloadEvent) error {
	if a.router != nil && a.router.Classify(url) == router.ClassMediaPlatform {
		return a.fetchViaExtractor(ctx, id, url, destPath, eventsCh)
	}
	if err := a.fetchDirect(ctx, id, url, destPath, eventsCh); err != nil {
		if a.log != nil {
			a.log.WarnfThrottled("vault-direct-fallback", time.Minute, "vault: direct fetch failed for %s, falling back to extractor: %v", id, err)
		}
		return a.fetchViaExtractor(ctx, id, url, destPath, eventsCh)
	}
	return nil
}

func (a *Adapter) fetchDirect(ctx context.Context, id, url, destPath string, eventsCh chan<- DownloadEvent) error {
	client := a.client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("vault: building request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("vault: direct GET: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("vault: direct GET returned status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("vault: creating scratch file: %w", err)
	}
	defer func() { _ = out.Close() }()

	total := resp.ContentLength
	var downloaded int64
	lastEmit := time.Now()
	buf := make([]byte, 256<<10)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("vault: writing scratch file: %w", werr)
			}
			downloaded += int64(n)
			if time.Since(lastEmit) >= 250*time.Millisecond {
				emit(eventsCh, DownloadEvent{ID: id, Status: StatusDownloading, DownloadedBytes: downloaded, TotalBytes: total, Progress: progressPercent(downloaded, total)})
				lastEmit = time.Now()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("vault: reading response body: %w", readErr)
		}
	}
	emit(eventsCh, DownloadEvent{ID: id, Status: StatusDownloading, DownloadedBytes: downloaded, TotalBytes: total, Progress: progressPercent(downloaded, total)})
	return nil
}

func (a *Adapter) fetchViaExtractor(ctx context.Context, id, url, destPath string, eventsCh chan<- DownloadEvent) error {
	if a.extractor == nil {
		return fmt.Errorf("vault: no extractor available for %s", url)
	}
	progressCh := make(chan pnde.Progress, 8)
	done := make(chan pnde.Result, 1)
	go func() {
		done <- a.extractor.Fetch(ctx, id, url, destPath, progressCh)
		close(progressCh)
	}()
	for p := range progressCh {
		emit(eventsCh, DownloadEvent{ID: id, Status: StatusDownloading, Progress: p.Progress, DownloadedBytes: p.DownloadedBytes, TotalBytes: p.TotalBytes})
	}
	result := <-done
	if !result.Success {
		return fmt.Errorf("vault: extractor fetch failed: %s", result.Error)
	}
	return nil
}

func progressPercent(downloaded, total int64) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(downloaded) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

func emit(ch chan<- DownloadEvent, ev DownloadEvent) {
	if ch == nil {
		return
	}
	ch <- ev
}

// cleanupScratchDir unconditionally removes the scratch directory, per
// spec.md §4.9 step 4: deletion failure is a warning, never a returned
// error, since the download itself already succeeded or failed on its own
// terms by the time this runs.
func (a *Adapter) cleanupScratchDir(dir string) {
	if err := os.RemoveAll(dir); err != nil && a.log != nil {
		a.log.WarnfThrottled("vault-scratch-cleanup", time.Minute, "vault: failed removing scratch dir %q: %v", dir, err)
	}
}
