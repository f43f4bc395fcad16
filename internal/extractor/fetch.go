package extractor

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// progressTemplate is printed by the fake script in tests and would be
// passed to a real extractor binary's own progress-template flag; fields are
// pipe-separated to avoid clashing with any of the values themselves.
const progressTemplate = "percent|speed|eta|downloaded|total"

// Fetch spawns the extractor binary against url, streaming Progress events
// on progressCh and returning the terminal Result, per spec.md §4.5's
// progress-line parsing rules: clamp post-processing markers into [90,99],
// allow a monotonicity-breaking reset when progress drops from ≥85% to ≤5%
// (a legitimate new-stream phase, e.g. video then audio), smooth speed with
// a 0.7/0.3 exponential average, and throttle emission to one event per
// 180ms unless the status materially changed.
func (d *Driver) Fetch(ctx context.Context, id, url, destPath string, progressCh chan<- Progress) Result {
	start := time.Now()
	cmd := d.execCmd(ctx, d.binaryPath,
		"--newline",
		"--progress-template", progressTemplate,
		"-o", destPath,
		url,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("extractor: wiring stdout: %v", err)}
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			select {
			case progressCh <- Progress{ID: id, Status: StatusCancelled}:
			default:
			}
			return Result{Success: false, Error: "cancelled", Duration: time.Since(start)}
		}
		return Result{Success: false, Error: fmt.Sprintf("extractor: starting: %v", err)}
	}

	tracker := newProgressTracker(id)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 4096), 1<<16)
	for scanner.Scan() {
		line := scanner.Text()
		ev, ok := tracker.parseLine(line)
		if !ok {
			continue
		}
		if tracker.shouldEmit(ev) {
			select {
			case progressCh <- ev:
			case <-ctx.Done():
			}
		}
	}

	waitErr := cmd.Wait()
	duration := time.Since(start)

	if ctx.Err() != nil {
		final := Progress{ID: id, Status: StatusCancelled, Progress: tracker.last.Progress}
		select {
		case progressCh <- final:
		default:
		}
		return Result{Success: false, Error: "cancelled", Duration: duration}
	}

	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		final := Progress{ID: id, Status: StatusFailed, Progress: tracker.last.Progress}
		select {
		case progressCh <- final:
		default:
		}
		return Result{Success: false, Error: msg, Duration: duration}
	}

	final := Progress{ID: id, Status: StatusCompleted, Progress: 100, DownloadedBytes: tracker.last.DownloadedBytes, TotalBytes: tracker.last.TotalBytes}
	select {
	case progressCh <- final:
	default:
	}

	avgKbps := uint32(0)
	if duration > 0 {
		avgKbps = uint32(float64(tracker.last.DownloadedBytes) / 1024 / duration.Seconds())
	}
	return Result{
		Success:         true,
		BytesDownloaded: tracker.last.DownloadedBytes,
		Duration:        duration,
		AvgSpeedKbps:    avgKbps,
	}
}

// progressTracker holds the per-fetch smoothing and throttling state that
// Fetch's parsing loop needs across lines.
type progressTracker struct {
	id           string
	last         Progress
	smoothedKbps float64
	haveSmoothed bool
	lastEmit     time.Time
	sawPostProc  bool
}

func newProgressTracker(id string) *progressTracker {
	return &progressTracker{id: id}
}

// postProcMarkers are the stderr/stdout substrings the extractor prints
// while merging separate video/audio streams, extracting audio, embedding a
// thumbnail, subtitles or metadata, or running a generic `[ffmpeg]` pass —
// the first three grounded in original_source/downloader.rs's marker match
// (`[Merger]`/`[ExtractAudio]`/`[ffmpeg]`), the embed markers being the
// same extractor's prefixes for those passes. These lines carry no percent field of their own; seeing one
// is what flips sawPostProc, which then clamps every subsequent numeric
// line into [90,99] until the process exits.
var postProcMarkers = []string{"[Merger]", "[ExtractAudio]", "[ffmpeg]", "[EmbedThumbnail]", "[EmbedSubtitle]", "[Metadata]"}

// parseLine turns one progress-template or post-processing marker line into
// a Progress event, applying the clamp and monotonicity rules. A line that
// matches neither shape is ignored (extractor binaries emit plenty of other
// chatter on the same stream).
func (t *progressTracker) parseLine(line string) (Progress, bool) {
	for _, marker := range postProcMarkers {
		if strings.Contains(line, marker) {
			return t.markPostProcessing(), true
		}
	}

	parts := strings.Split(line, "|")
	if len(parts) != 5 {
		return Progress{}, false
	}
	percent, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Progress{}, false
	}
	speedKbps, _ := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	eta := strings.TrimSpace(parts[2])
	downloaded, _ := strconv.ParseInt(strings.TrimSpace(parts[3]), 10, 64)
	total, _ := strconv.ParseInt(strings.TrimSpace(parts[4]), 10, 64)

	percent = t.applyMonotonicity(percent)
	percent = t.applyPostProcessClamp(percent)
	smoothed := t.smoothSpeed(speedKbps)

	ev := Progress{
		ID:              t.id,
		Progress:        percent,
		Speed:           formatSpeed(smoothed),
		ETA:             eta,
		Status:          StatusDownloading,
		DownloadedBytes: downloaded,
		TotalBytes:      total,
	}
	t.last = ev
	return ev, true
}

// markPostProcessing builds the synthetic event for a post-processing
// marker line: no percent/speed/eta fields of its own, so it carries
// forward the last known byte counts and pins progress to
// postProcessClampHigh (99%), matching the original's fixed 99% marker
// event.
func (t *progressTracker) markPostProcessing() Progress {
	t.sawPostProc = true
	ev := Progress{
		ID:              t.id,
		Progress:        postProcessClampHigh,
		Speed:           "Merging...",
		Status:          StatusDownloading,
		DownloadedBytes: t.last.DownloadedBytes,
		TotalBytes:      t.last.TotalBytes,
	}
	t.last = ev
	return ev
}

// applyMonotonicity rejects a backwards jump unless it crosses the
// ≥85%→≤5% boundary, which marks a legitimate new stream phase (e.g. a
// video-then-audio two-pass fetch) rather than a parsing glitch.
func (t *progressTracker) applyMonotonicity(percent float64) float64 {
	if percent < t.last.Progress {
		if t.last.Progress >= monotonicResetCeil && percent <= monotonicResetFloor {
			return percent
		}
		return t.last.Progress
	}
	return percent
}

// applyPostProcessClamp pins every numeric progress line into [90,99] once
// a post-processing marker line (see markPostProcessing) has been seen, so
// the UI never reports 100% before the file is actually finalized.
func (t *progressTracker) applyPostProcessClamp(percent float64) float64 {
	if !t.sawPostProc {
		return percent
	}
	if percent > postProcessClampHigh {
		return postProcessClampHigh
	}
	if percent < postProcessClampLow {
		return postProcessClampLow
	}
	return percent
}

func (t *progressTracker) smoothSpeed(observedKbps float64) float64 {
	if !t.haveSmoothed {
		t.smoothedKbps = observedKbps
		t.haveSmoothed = true
		return t.smoothedKbps
	}
	t.smoothedKbps = speedSmoothingPrev*t.smoothedKbps + speedSmoothingObs*observedKbps
	return t.smoothedKbps
}

// shouldEmit throttles emission to at most one event per minEmitInterval,
// unless the status materially changed (download finished, failed, or
// entered post-processing), which always passes through immediately.
func (t *progressTracker) shouldEmit(ev Progress) bool {
	materialChange := ev.Status != StatusDownloading || t.sawPostProc
	if materialChange || time.Since(t.lastEmit) >= minEmitInterval {
		t.lastEmit = time.Now()
		return true
	}
	return false
}

func formatSpeed(kbps float64) string {
	if kbps <= 0 {
		return ""
	}
	if kbps >= 1024 {
		return fmt.Sprintf("%.2f MiB/s", kbps/1024)
	}
	return fmt.Sprintf("%.1f KiB/s", kbps)
}
