package health

import "testing"

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	total := int64(1000)
	r.Register("dl-1", EnginePNDEAccelerated, &total)

	h, ok := r.Get("dl-1")
	if !ok {
		t.Fatalf("expected download to be tracked")
	}
	if h.DownloadID != "dl-1" || h.Engine != EnginePNDEAccelerated {
		t.Fatalf("unexpected health: %+v", h)
	}
	if h.TotalBytes == nil || *h.TotalBytes != 1000 {
		t.Fatalf("unexpected total bytes: %+v", h.TotalBytes)
	}
}

func TestRecordErrorSetsThrottlingOnStatusCode(t *testing.T) {
	r := NewRegistry()
	r.Register("dl-2", EnginePNDEAccelerated, nil)
	r.RecordError("dl-2", "rate limited", 429)

	h, _ := r.Get("dl-2")
	if !h.ThrottlingDetected {
		t.Fatalf("expected throttling_detected after a 429")
	}
	if !r.IsThrottled("dl-2") {
		t.Fatalf("IsThrottled should be true")
	}
}

func TestErrorLogIsBounded(t *testing.T) {
	r := NewRegistry()
	r.Register("dl-3", EnginePNDEAccelerated, nil)
	for i := 0; i < maxErrorLogEntries+10; i++ {
		r.RecordError("dl-3", "boom", 0)
	}
	h, _ := r.Get("dl-3")
	if len(h.ErrorLog) != maxErrorLogEntries {
		t.Fatalf("error log length = %d, want %d", len(h.ErrorLog), maxErrorLogEntries)
	}
}

func TestUpdateConnectionRecomputesAggregates(t *testing.T) {
	r := NewRegistry()
	r.Register("dl-4", EnginePNDEAccelerated, nil)
	r.UpdateConnection("dl-4", ConnectionHealth{ID: 0, ThroughputBps: 100, ErrorCount: 1, RetryCount: 2})
	r.UpdateConnection("dl-4", ConnectionHealth{ID: 1, ThroughputBps: 200, ErrorCount: 3, RetryCount: 4})

	h, _ := r.Get("dl-4")
	if h.ActiveConnections != 2 {
		t.Fatalf("active connections = %d, want 2", h.ActiveConnections)
	}
	if h.TotalThroughputBps != 300 {
		t.Fatalf("throughput = %d, want 300", h.TotalThroughputBps)
	}
	if h.TotalErrors != 4 || h.TotalRetries != 6 {
		t.Fatalf("unexpected totals: errors=%d retries=%d", h.TotalErrors, h.TotalRetries)
	}
	if h.PeakConnections != 2 {
		t.Fatalf("peak connections = %d, want 2", h.PeakConnections)
	}
}

func TestIsThrottledLowThroughputOnlyWhenDownloading(t *testing.T) {
	r := NewRegistry()
	r.Register("dl-5", EnginePNDEAccelerated, nil)
	r.UpdateProgress("dl-5", 0, 100) // well below 10,000 bps

	if r.IsThrottled("dl-5") {
		t.Fatalf("should not be throttled outside the downloading phase")
	}
	r.SetPhase("dl-5", PhaseDownloading)
	if !r.IsThrottled("dl-5") {
		t.Fatalf("expected throttling once in downloading phase with low throughput")
	}
}

func TestUnregisterRemovesDownload(t *testing.T) {
	r := NewRegistry()
	r.Register("dl-6", EnginePNDEAccelerated, nil)
	r.Unregister("dl-6")
	if _, ok := r.Get("dl-6"); ok {
		t.Fatalf("expected download to be gone after Unregister")
	}
}
