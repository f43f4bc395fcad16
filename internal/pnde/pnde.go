// Package pnde is the Parallel Native Download Engine: a multi-connection,
// work-stealing byte-range downloader for static files. Grounded in
// original_source/snde.rs's SNDEEngine (probe → preallocate → chunk →
// work-steal → report shape) translated onto goroutines, and in the
// teacher's internal/downloader/chunked.go for the Go idiom (errgroup worker
// pool) with the teacher's sqlite-backed chunk persistence dropped in favor
// of an in-memory chunk vector, since this engine never survives a process
// restart. The output file is written in place; there is no fsync or
// rename step at the end.
package pnde

import (
	"net/http"
	"time"

	"duskrelay/internal/config"
	"duskrelay/internal/health"
	"duskrelay/internal/hostreputation"
	"duskrelay/internal/httpx"
)

const (
	maxConnections  = 16
	minChunkSize    = 1 << 20   // 1 MiB, see original_source/snde.rs MIN_CHUNK_SIZE
	bufferSize      = 256 << 10 // 256 KiB
	reportInterval  = 250 * time.Millisecond
	maxChunkRetries = 5

	tierFullAllocBytes    = 8 << 30  // below this: full pre-allocation
	tierPartialAllocLimit = 32 << 30 // below this: 4GiB partial pre-allocation
	partialAllocBytes     = 4 << 30  // see DESIGN.md open question 3
)

// Status is the terminal or in-flight state of a download, mirrored into
// every Progress event's Status field.
type Status string

const (
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusMerging     Status = "merging"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Request is the input to a single PNDE download.
type Request struct {
	ID         string
	URL        string
	OutputPath string
	Decision   Routing
}

// Routing is the subset of a router.Decision that PNDE actually consumes,
// kept narrow so this package doesn't import router's probe/reputation
// machinery it has no use for.
type Routing struct {
	RecommendedConnections int
	ForceHTTP1             bool
	Badge                  string
}

// Progress is the event shape streamed to callers roughly every 250ms.
type Progress struct {
	ID              string
	Progress        float64
	Speed           string
	ETA             string
	Status          Status
	DownloadedBytes int64
	TotalBytes      int64
	Filename        string
	EngineBadge     string
}

// Result is the terminal outcome of Download.
type Result struct {
	Success         bool
	Error           string
	BytesDownloaded int64
	Duration        time.Duration
	AvgSpeedKbps    uint32
}

// Engine holds the two http.Client flavors PNDE needs and the shared stores
// it reports observations into.
type Engine struct {
	client      *http.Client
	http1Client *http.Client
	rep         *hostreputation.Store
	health      *health.Registry
	userAgent   string
	controllers *controllerRegistry
}

// New builds an Engine with a general (HTTP/2-capable) client and a
// forced-HTTP/1.1 client, each sized to maxConnections idle connections per
// host so a full-width download never queues on the transport's own pool.
func New(cfg *config.Config, rep *hostreputation.Store, reg *health.Registry) *Engine {
	opts := httpx.Options{MaxConnsPerHost: maxConnections}
	return &Engine{
		client:      httpx.New(cfg, opts),
		http1Client: httpx.New(cfg, httpx.Options{ForceHTTP1: true, MaxConnsPerHost: maxConnections}),
		rep:         rep,
		health:      reg,
		userAgent:   httpx.UserAgent(cfg),
		controllers: newControllerRegistry(),
	}
}
