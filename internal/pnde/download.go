package pnde

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"duskrelay/internal/health"
	"duskrelay/internal/hostreputation"
)

// Download runs one PNDE transfer end to end: HEAD probe, tiered
// pre-allocation, chunk partitioning, a work-stealing pool of goroutines,
// and a 250ms progress reporter, per spec.md §4.4. Cancelling ctx kills
// in-flight workers between chunks or mid-stream, per §5's cancellation
// rule. progressCh receives every emitted event, including the terminal
// one; Download closes it before returning.
func (e *Engine) Download(ctx context.Context, req Request, progressCh chan<- Progress) Result {
	defer close(progressCh)
	start := time.Now()

	if e.health != nil {
		e.health.Register(req.ID, engineForRouting(req.Decision), nil)
		e.health.SetPhase(req.ID, health.PhasePreflight)
	}
	progressCh <- Progress{ID: req.ID, Status: StatusStarting, EngineBadge: req.Decision.Badge}

	probe, err := e.probeFile(ctx, req.URL)
	if err != nil {
		e.recordFailure(req.URL, false, false)
		return e.fail(req, start, 0, fmt.Sprintf("probe failed: %s", err), progressCh)
	}

	outputPath := resolveOutputPath(req.OutputPath, probe.filename)

	numConnections := 1
	if probe.supportsRange {
		numConnections = req.Decision.RecommendedConnections
		if numConnections < 1 {
			numConnections = 1
		}
		if numConnections > maxConnections {
			numConnections = maxConnections
		}
	} else if req.Decision.RecommendedConnections > 1 {
		// Claimed range support never materialized at fetch time.
		e.recordFailure(req.URL, false, true)
	}

	if e.health != nil {
		e.health.SetPhase(req.ID, health.PhaseAllocating)
	}
	file, err := preallocateFile(outputPath, probe.totalSize)
	if err != nil {
		e.recordFailure(req.URL, false, false)
		return e.fail(req, start, 0, fmt.Sprintf("allocate file: %s", err), progressCh)
	}
	defer file.Close()

	if e.health != nil {
		e.health.SetPhase(req.ID, health.PhaseDownloading)
	}

	set := &chunkSet{chunks: createChunks(probe.totalSize, numConnections)}
	var downloaded atomic.Int64

	client := e.client
	if req.Decision.ForceHTTP1 {
		client = e.http1Client
	}

	ctrl := e.controllers.register(req.ID, numConnections)
	defer e.controllers.unregister(req.ID)
	if e.health != nil {
		e.health.SetActiveConnections(req.ID, numConnections)
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	reportDone := make(chan struct{})
	go e.reportProgress(workerCtx, req, probe.totalSize, &downloaded, progressCh, reportDone)

	g, gctx := errgroup.WithContext(workerCtx)
	for i := 0; i < numConnections; i++ {
		slot := i
		g.Go(func() error {
			return worker(gctx, client, e.userAgent, req.URL, set, file, &downloaded, slot, ctrl)
		})
	}
	workErr := g.Wait()
	cancelWorkers()
	<-reportDone

	finalBytes := downloaded.Load()
	duration := time.Since(start)
	success := workErr == nil && ctx.Err() == nil && finalBytes == probe.totalSize && set.allComplete()

	status := StatusCompleted
	switch {
	case ctx.Err() != nil:
		status = StatusCancelled
	case !success:
		status = StatusFailed
	}

	if e.health != nil {
		if status == StatusCompleted {
			e.health.SetPhase(req.ID, health.PhaseCompleted)
		} else if status == StatusCancelled {
			e.health.SetPhase(req.ID, health.PhaseCancelled)
		} else {
			e.health.SetPhase(req.ID, health.PhaseFailed)
		}
	}

	finalProgress := 100.0
	if !success && probe.totalSize > 0 {
		finalProgress = (float64(finalBytes) / float64(probe.totalSize)) * 100
	}
	progressCh <- Progress{
		ID:              req.ID,
		Progress:        finalProgress,
		Status:          status,
		DownloadedBytes: finalBytes,
		TotalBytes:      probe.totalSize,
		EngineBadge:     req.Decision.Badge,
	}

	avgSpeedKbps := uint32(0)
	if duration.Seconds() > 0 {
		avgSpeedKbps = uint32((float64(finalBytes) / 1024.0) / duration.Seconds())
	}

	if success {
		e.recordSuccess(req.URL, avgSpeedKbps, numConnections)
		return Result{Success: true, BytesDownloaded: finalBytes, Duration: duration, AvgSpeedKbps: avgSpeedKbps}
	}
	if status != StatusCancelled {
		e.recordFailure(req.URL, false, false)
	}
	errMsg := "download incomplete"
	if workErr != nil {
		errMsg = workErr.Error()
	}
	return Result{Success: false, Error: errMsg, BytesDownloaded: finalBytes, Duration: duration, AvgSpeedKbps: avgSpeedKbps}
}

func (e *Engine) fail(req Request, start time.Time, bytes int64, msg string, progressCh chan<- Progress) Result {
	if e.health != nil {
		e.health.SetPhase(req.ID, health.PhaseFailed)
	}
	progressCh <- Progress{ID: req.ID, Status: StatusFailed, EngineBadge: req.Decision.Badge}
	return Result{Success: false, Error: msg, BytesDownloaded: bytes, Duration: time.Since(start)}
}

func (e *Engine) recordSuccess(rawURL string, speedKbps uint32, conns int) {
	if e.rep == nil {
		return
	}
	domain := hostreputation.ExtractDomain(rawURL)
	if domain == "" {
		return
	}
	_ = e.rep.RecordSuccess(domain, int(speedKbps), conns)
}

func (e *Engine) recordFailure(rawURL string, throttled, rangeError bool) {
	if e.rep == nil {
		return
	}
	domain := hostreputation.ExtractDomain(rawURL)
	if domain == "" {
		return
	}
	_ = e.rep.RecordFailure(domain, throttled, rangeError)
}

// reportProgress ticks every reportInterval, computing an instantaneous
// speed from the delta since the last tick, exactly like
// original_source/snde.rs's progress task.
func (e *Engine) reportProgress(ctx context.Context, req Request, totalSize int64, downloaded *atomic.Int64, progressCh chan<- Progress, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	lastBytes := int64(0)
	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := downloaded.Load()
			elapsed := time.Since(lastTime).Seconds()
			if elapsed <= 0 {
				continue
			}
			speedBps := float64(current-lastBytes) / elapsed
			var progress float64
			if totalSize > 0 {
				progress = (float64(current) / float64(totalSize)) * 100
			}

			progressCh <- Progress{
				ID:              req.ID,
				Progress:        progress,
				Speed:           formatSpeed(speedBps),
				ETA:             formatETA(speedBps, totalSize-current),
				Status:          StatusDownloading,
				DownloadedBytes: current,
				TotalBytes:      totalSize,
				EngineBadge:     req.Decision.Badge,
			}
			if e.health != nil {
				e.health.UpdateProgress(req.ID, current, int64(speedBps))
			}

			lastBytes = current
			lastTime = time.Now()
		}
	}
}

func engineForRouting(r Routing) health.Engine {
	if r.ForceHTTP1 {
		return health.EnginePNDEAccelerated
	}
	return health.EnginePNDESafe
}
