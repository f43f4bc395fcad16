package api

import (
	"context"

	"duskrelay/internal/extractor"
	"duskrelay/internal/health"
	"duskrelay/internal/pnde"
	"duskrelay/internal/router"
	"duskrelay/internal/scheduler"
	"duskrelay/internal/vault"
)

// --- router.route -----------------------------------------------------

// RouteURL implements `router.route`: classify and, where warranted, probe
// rawURL, returning the routing decision every downstream command builds
// its Request.Decision from.
func (c *Core) RouteURL(ctx context.Context, rawURL string) router.Decision {
	return c.rtr.Route(ctx, rawURL)
}

// --- pnde.start / pnde.cancel ------------------------------------------

// DownloadRequest is the shared input shape for pnde.start and
// extractor.start, per spec.md §6's table (id, url, decision, output path
// all fold into one request regardless of which engine ultimately serves
// it).
type DownloadRequest struct {
	ID         string
	URL        string
	OutputPath string
	Decision   router.Decision
}

// StartNative implements `pnde.start`: runs one PNDE transfer to
// completion, streaming Progress events on progressCh (which Download
// closes before returning).
func (c *Core) StartNative(ctx context.Context, req DownloadRequest, progressCh chan<- pnde.Progress) pnde.Result {
	return c.engine.Download(ctx, pnde.Request{
		ID:         req.ID,
		URL:        req.URL,
		OutputPath: req.OutputPath,
		Decision: pnde.Routing{
			RecommendedConnections: req.Decision.RecommendedConnections,
			ForceHTTP1:             req.Decision.ForceHTTP1,
			Badge:                  req.Decision.Badge,
		},
	}, progressCh)
}

// CancelNative implements `pnde.cancel`. PNDE has no separate cancel
// registry of its own; cancellation is driven by the caller's ctx, so this
// reports whether the download is even known to the health registry (the
// closest thing to a "not found" signal this engine exposes).
func (c *Core) CancelNative(id string) bool {
	_, ok := c.reg.Get(id)
	return ok
}

// --- extractor.info / extractor.start / extractor.update ----------------

// Info implements `extractor.info`.
func (c *Core) Info(ctx context.Context, url string, sponsorBlock bool) (extractor.MediaInfo, error) {
	return c.ext.Info(ctx, url, sponsorBlock)
}

// StartExtractor implements `extractor.start`.
func (c *Core) StartExtractor(ctx context.Context, req DownloadRequest, progressCh chan<- extractor.Progress) extractor.Result {
	defer close(progressCh)
	return c.ext.Fetch(ctx, req.ID, req.URL, req.OutputPath, progressCh)
}

// CheckExtractorUpdate implements `extractor.update`: resolve the latest
// published tag from the configured release index, then compare it against
// the installed binary's own --version output, per spec.md §4.5.
func (c *Core) CheckExtractorUpdate(ctx context.Context) (extractor.ExtractorInfo, error) {
	latest, err := c.ext.FetchLatestVersion(ctx)
	if err != nil {
		return extractor.ExtractorInfo{}, err
	}
	return c.ext.CheckUpdate(ctx, latest)
}

// ApplyExtractorUpdate downloads and installs the platform asset named by
// the release index, completing spec.md §4.5's self-update half that
// CheckExtractorUpdate only detects.
func (c *Core) ApplyExtractorUpdate(ctx context.Context) (extractor.ExtractorInfo, error) {
	return c.ext.ApplyUpdate(ctx)
}

// --- scheduler.* ---------------------------------------------------------

// EnqueueDownload implements `scheduler.enqueue`.
func (c *Core) EnqueueDownload(id, url string, engine health.Engine, priority scheduler.Priority, size *int64) {
	c.sched.Enqueue(id, url, engine, priority, size)
}

// PauseDownload implements `scheduler.pause`.
func (c *Core) PauseDownload(id string) bool { return c.sched.Pause(id) }

// ResumeDownload implements `scheduler.resume`.
func (c *Core) ResumeDownload(id string) bool { return c.sched.Resume(id) }

// CancelQueued implements `scheduler.cancel`.
func (c *Core) CancelQueued(id string) bool { return c.sched.Cancel(id) }

// SetDownloadPriority implements `scheduler.set_priority`.
func (c *Core) SetDownloadPriority(id string, p scheduler.Priority) bool {
	return c.sched.SetPriority(id, p)
}

// SchedulerStatus implements `scheduler.status`.
func (c *Core) SchedulerStatus() scheduler.Status { return c.sched.Status() }

// --- vault.* ---------------------------------------------------------

// VaultStatus implements `vault.status`.
func (c *Core) VaultStatus() (vault.Status, error) { return c.vlt.Status() }

// VaultSetup implements `vault.setup`.
func (c *Core) VaultSetup(pin string) error { return c.vlt.Setup(pin) }

// VaultUnlock implements `vault.unlock`.
func (c *Core) VaultUnlock(pin string) error { return c.vlt.Unlock(pin) }

// VaultLock implements `vault.lock`.
func (c *Core) VaultLock() error { return c.vlt.Lock() }

// VaultChangePIN implements `vault.change_pin`.
func (c *Core) VaultChangePIN(currentPIN, newPIN string) error {
	return c.vlt.ChangePIN(currentPIN, newPIN)
}

// VaultReset implements `vault.reset`.
func (c *Core) VaultReset() error { return c.vlt.Reset() }

// AddVaultFile implements `vault.add_file`.
func (c *Core) AddVaultFile(srcPath, name string, fileType vault.FileType, thumbnail *string, deleteOriginal bool) (vault.File, error) {
	return c.vlt.AddFile(srcPath, name, fileType, thumbnail, deleteOriginal)
}

// AddVaultFolder implements `vault.add_folder`.
func (c *Core) AddVaultFolder(dir, name string, deleteOriginal bool) (vault.File, error) {
	return c.vlt.AddFolder(dir, name, deleteOriginal)
}

// ExportVaultFile implements `vault.export_file`.
func (c *Core) ExportVaultFile(encryptedName, originalName, dest string) (string, error) {
	return c.vlt.ExportFile(encryptedName, originalName, dest)
}

// ExtractVaultFolderFile implements `vault.extract_folder_file`.
func (c *Core) ExtractVaultFolderFile(id, encryptedName, innerPath string) (string, error) {
	return c.vlt.ExtractFolderFile(id, encryptedName, innerPath)
}

// VaultFileBase64 implements `vault.get_file_base64`.
func (c *Core) VaultFileBase64(encryptedName string) ([]byte, error) {
	return c.vlt.GetFileBase64(encryptedName)
}

// SaveVaultFileBase64 implements `vault.save_file_base64`.
func (c *Core) SaveVaultFileBase64(plaintext []byte, name string, fileType vault.FileType) (vault.File, error) {
	return c.vlt.SaveFileBase64(plaintext, name, fileType)
}

// RenameVaultFile implements `vault.rename`.
func (c *Core) RenameVaultFile(oldName, newName string) error {
	return c.vlt.RenameCiphertext(oldName, newName)
}

// VaultFileSize implements `vault.size`.
func (c *Core) VaultFileSize(encryptedName string) (int64, error) {
	return c.vlt.SizeOf(encryptedName)
}

// DownloadToVault drives the Vault Download Adapter (C9): fetch a URL into
// the vault, streaming vault.DownloadEvents on eventsCh. Not itself a row
// in spec.md §6's table (that table covers the generic engines); vault
// downloads are a composition of router.route + the adapter, exposed here
// as one convenience call.
func (c *Core) DownloadToVault(ctx context.Context, id, url, name string, fileType vault.FileType, deleteOriginal bool, eventsCh chan<- vault.DownloadEvent) (vault.File, error) {
	return c.vda.Download(ctx, id, url, name, fileType, deleteOriginal, eventsCh)
}
