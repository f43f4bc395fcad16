// Package metrics exposes the counters/gauges C1-C9 touch and an optional
// Prometheus textfile snapshot, following the teacher's atomic-rename write
// pattern but backed by a real client_golang registry instead of hand
// formatted text.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"duskrelay/internal/config"
)

// Manager owns a private prometheus.Registry so tests can construct
// independent instances without colliding on the default global registry.
type Manager struct {
	path string
	reg  *prometheus.Registry

	BytesDownloadedTotal prometheus.Counter
	ChunkRetriesTotal    prometheus.Counter
	DownloadsSuccessTotal prometheus.Counter
	DownloadsFailedTotal prometheus.Counter
	WatchdogActionsTotal *prometheus.CounterVec
	VaultOpsTotal        *prometheus.CounterVec
	ActiveDownloads      prometheus.Gauge
	LastDownloadSeconds  prometheus.Gauge
}

// New builds a Manager. If the config disables the textfile snapshot the
// returned Manager is still usable (the counters are live) but Write is a
// no-op.
func New(cfg *config.Config) *Manager {
	reg := prometheus.NewRegistry()
	m := &Manager{
		reg: reg,
		BytesDownloadedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duskrelay_bytes_downloaded_total",
			Help: "Total bytes downloaded across all engines.",
		}),
		ChunkRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duskrelay_chunk_retries_total",
			Help: "Total PNDE chunk fetch retries.",
		}),
		DownloadsSuccessTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duskrelay_downloads_success_total",
			Help: "Total downloads that reached the completed state.",
		}),
		DownloadsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duskrelay_downloads_failed_total",
			Help: "Total downloads that reached the failed state.",
		}),
		WatchdogActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duskrelay_watchdog_actions_total",
			Help: "Watchdog interventions by action kind.",
		}, []string{"action"}),
		VaultOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duskrelay_vault_ops_total",
			Help: "Vault operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		ActiveDownloads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "duskrelay_active_downloads",
			Help: "Downloads currently admitted by the scheduler.",
		}),
		LastDownloadSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "duskrelay_last_download_seconds",
			Help: "Duration of the most recently completed download, in seconds.",
		}),
	}
	reg.MustRegister(
		m.BytesDownloadedTotal,
		m.ChunkRetriesTotal,
		m.DownloadsSuccessTotal,
		m.DownloadsFailedTotal,
		m.WatchdogActionsTotal,
		m.VaultOpsTotal,
		m.ActiveDownloads,
		m.LastDownloadSeconds,
	)
	if cfg != nil && cfg.Metrics.PrometheusTextfile.Enabled && cfg.Metrics.PrometheusTextfile.Path != "" {
		m.path = cfg.Metrics.PrometheusTextfile.Path
		_ = os.MkdirAll(filepath.Dir(m.path), 0o755)
	}
	return m
}

// Write snapshots the registry to the configured textfile path using the
// Prometheus text exposition format, via a temp-file-then-rename swap so a
// concurrent node_exporter scrape never observes a partial file.
func (m *Manager) Write() error {
	if m == nil || m.path == "" {
		return nil
	}
	families, err := m.reg.Gather()
	if err != nil {
		return err
	}
	dir := filepath.Dir(m.path)
	f, err := os.CreateTemp(dir, ".metrics.tmp.*")
	if err != nil {
		return err
	}
	tmpName := f.Name()
	defer os.Remove(tmpName)

	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, fam := range families {
		if err := enc.Encode(fam); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, m.path)
}

// StartPeriodicWrite writes a textfile snapshot on the given interval until
// stop is closed. Mirrors the teacher's fire-and-forget background writer
// convention used for other side-effecting periodic tasks.
func (m *Manager) StartPeriodicWrite(interval time.Duration, stop <-chan struct{}) {
	if m == nil || m.path == "" {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = m.Write()
			}
		}
	}()
}
