package hostreputation

import (
	"testing"

	"duskrelay/internal/config"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	cfg := &config.Config{Version: 1, General: config.General{DataRoot: t.TempDir()}}
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetDefaultsForUnknownHost(t *testing.T) {
	s := testStore(t)
	r, err := s.Get("unknown.example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.MaxStableConns != 4 || r.HealthScore != 50 || !r.SupportsRange {
		t.Fatalf("unexpected default record: %+v", r)
	}
}

func TestRecordSuccessIncreasesHealthAndConns(t *testing.T) {
	s := testStore(t)
	host := "fast.example.com"
	if err := s.RecordSuccess(host, 5000, 6); err != nil {
		t.Fatalf("record success: %v", err)
	}
	r, err := s.Get(host)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.HealthScore != 55 {
		t.Fatalf("health score = %d, want 55", r.HealthScore)
	}
	if r.MaxStableConns != 6 {
		t.Fatalf("max stable conns = %d, want 6", r.MaxStableConns)
	}
	if r.EWMASpeedKbps != 5000 {
		t.Fatalf("ewma speed = %d, want 5000 on first sample", r.EWMASpeedKbps)
	}
	if err := s.RecordSuccess(host, 1000, 2); err != nil {
		t.Fatalf("record success 2: %v", err)
	}
	r, _ = s.Get(host)
	if want := (5000*9 + 1000) / 10; r.EWMASpeedKbps != want {
		t.Fatalf("ewma speed = %d, want %d", r.EWMASpeedKbps, want)
	}
	if r.MaxStableConns != 6 {
		t.Fatalf("max stable conns should not drop below prior high water mark, got %d", r.MaxStableConns)
	}
}

func TestRecordFailureThrottledAndRangeError(t *testing.T) {
	s := testStore(t)
	host := "flaky.example.com"
	if err := s.Upsert(Record{Domain: host, MaxStableConns: 8, HealthScore: 50, SupportsRange: true}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.RecordFailure(host, true, true); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	r, err := s.Get(host)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.HealthScore != 40 {
		t.Fatalf("health score = %d, want 40", r.HealthScore)
	}
	if r.MaxStableConns != 6 {
		t.Fatalf("max stable conns = %d, want 6 (8-2)", r.MaxStableConns)
	}
	if r.SupportsRange {
		t.Fatalf("supports_range should be false after a range error")
	}
}

func TestRecordFailureClampsHealthAndConnsFloor(t *testing.T) {
	s := testStore(t)
	host := "dying.example.com"
	if err := s.Upsert(Record{Domain: host, MaxStableConns: 2, HealthScore: 5}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.RecordFailure(host, true, false); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	r, _ := s.Get(host)
	if r.HealthScore != 0 {
		t.Fatalf("health score = %d, want floor 0", r.HealthScore)
	}
	if r.MaxStableConns != 1 {
		t.Fatalf("max stable conns = %d, want floor 1", r.MaxStableConns)
	}
}

func TestRecordCollapseOnlyLowers(t *testing.T) {
	s := testStore(t)
	host := "collapsing.example.com"
	if err := s.Upsert(Record{Domain: host, MaxStableConns: 8, HealthScore: 50}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.RecordCollapse(host, 3); err != nil {
		t.Fatalf("collapse: %v", err)
	}
	r, _ := s.Get(host)
	if r.MaxStableConns != 3 {
		t.Fatalf("max stable conns = %d, want 3", r.MaxStableConns)
	}
	// a "collapse" to a higher count than current must not raise it back up.
	if err := s.RecordCollapse(host, 10); err != nil {
		t.Fatalf("collapse 2: %v", err)
	}
	r, _ = s.Get(host)
	if r.MaxStableConns != 3 {
		t.Fatalf("max stable conns = %d, want unchanged 3", r.MaxStableConns)
	}
}

func TestExtractDomain(t *testing.T) {
	cases := map[string]string{
		"https://www.YouTube.com/watch?v=abc": "www.youtube.com",
		"https://fastcdn.example.com/file.zip": "fastcdn.example.com",
		"not a url":                            "",
	}
	for in, want := range cases {
		if got := ExtractDomain(in); got != want {
			t.Fatalf("ExtractDomain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanupStaleKeepsRecentAndSuccessful(t *testing.T) {
	s := testStore(t)
	stale := Record{Domain: "stale.example.com", MaxStableConns: 4, HealthScore: 50, LastUpdatedUnix: 1}
	established := Record{Domain: "established.example.com", MaxStableConns: 4, HealthScore: 50, SuccessCount: 50, LastUpdatedUnix: 1}
	if err := s.Upsert(stale); err != nil {
		t.Fatalf("seed stale: %v", err)
	}
	if err := s.Upsert(established); err != nil {
		t.Fatalf("seed established: %v", err)
	}
	n, err := s.CleanupStale()
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}
	if _, err := s.Get("established.example.com"); err != nil {
		t.Fatalf("get established: %v", err)
	}
	all, err := s.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 1 || all[0].Domain != "established.example.com" {
		t.Fatalf("unexpected remaining records: %+v", all)
	}
}
