package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Format describes one downloadable rendition of a media item.
type Format struct {
	FormatID   string `json:"format_id"`
	Codec      string `json:"codec"`
	Resolution string `json:"resolution"`
	BitrateKbps int   `json:"bitrate_kbps"`
}

// MediaInfo is the domain model extractor.info resolves to, per spec.md
// §4.5's "title, duration, uploader, platforms, a list of formats" list.
type MediaInfo struct {
	Title    string   `json:"title"`
	Duration int64    `json:"duration_s"`
	Uploader string   `json:"uploader"`
	Platform string   `json:"platform"`
	Formats  []Format `json:"formats"`
}

// rawMetadata is what the extractor binary's JSON-dump argument actually
// produces; Info translates it into the stable MediaInfo domain model so a
// future extractor binary's JSON shape change is isolated to this file.
type rawMetadata struct {
	Title    string `json:"title"`
	Duration int64  `json:"duration"`
	Uploader string `json:"uploader"`
	Extractor string `json:"extractor"`
	Formats  []struct {
		FormatID string `json:"format_id"`
		VCodec   string `json:"vcodec"`
		ACodec   string `json:"acodec"`
		Height   int    `json:"height"`
		Width    int    `json:"width"`
		TBR      float64 `json:"tbr"`
	} `json:"formats"`
}

// Info fetches metadata for url, consulting and populating the 5-minute/
// 64-entry cache keyed on (url, sponsorBlock), per spec.md §4.5. Retries are
// bounded per config.Concurrency.ExtractorRetries.
func (d *Driver) Info(ctx context.Context, url string, sponsorBlock bool) (MediaInfo, error) {
	if info, ok := d.cache.get(url, sponsorBlock); ok {
		return info, nil
	}

	retries := d.cfg.Concurrency.ExtractorRetries
	if retries < 0 {
		retries = 0
	}
	args := []string{"--dump-json", "--no-playlist"}
	if sponsorBlock {
		args = append(args, "--sponsorblock-mark", "all")
	}
	args = append(args, url)

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		info, err := d.runMetadata(ctx, args)
		if err == nil {
			d.cache.put(url, sponsorBlock, info)
			return info, nil
		}
		lastErr = err
	}
	return MediaInfo{}, fmt.Errorf("extractor: metadata fetch failed after %d attempt(s): %w", retries+1, lastErr)
}

func (d *Driver) runMetadata(ctx context.Context, args []string) (MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataSocketTimeout)
	defer cancel()

	cmd := d.execCmd(ctx, d.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return MediaInfo{}, fmt.Errorf("extractor: spawning metadata fetch: %w (%s)", err, stderr.String())
	}

	var raw rawMetadata
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return MediaInfo{}, fmt.Errorf("extractor: parsing metadata JSON: %w", err)
	}

	info := MediaInfo{
		Title:    raw.Title,
		Duration: raw.Duration,
		Uploader: raw.Uploader,
		Platform: raw.Extractor,
	}
	for _, f := range raw.Formats {
		codec := f.VCodec
		if codec == "" || codec == "none" {
			codec = f.ACodec
		}
		res := ""
		if f.Width > 0 && f.Height > 0 {
			res = fmt.Sprintf("%dx%d", f.Width, f.Height)
		}
		info.Formats = append(info.Formats, Format{
			FormatID:    f.FormatID,
			Codec:       codec,
			Resolution:  res,
			BitrateKbps: int(f.TBR),
		})
	}
	return info, nil
}

// ExtractorInfo is extractor.update's result shape, per spec.md §6.
type ExtractorInfo struct {
	Version         string
	Latest          string
	UpdateAvailable bool
}

// CheckUpdate spawns the binary with --version and compares it against
// latestVersion (resolved from a release index by the caller's own HTTP
// client, kept out of this method so Driver stays testable without
// network access).
func (d *Driver) CheckUpdate(ctx context.Context, latestVersion string) (ExtractorInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataSocketTimeout)
	defer cancel()
	cmd := d.execCmd(ctx, d.binaryPath, "--version")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return ExtractorInfo{}, fmt.Errorf("extractor: checking version: %w", err)
	}
	version := trimVersion(stdout.String())
	return ExtractorInfo{
		Version:         version,
		Latest:          latestVersion,
		UpdateAvailable: latestVersion != "" && version != latestVersion,
	}, nil
}

func trimVersion(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}
