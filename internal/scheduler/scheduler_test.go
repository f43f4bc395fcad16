package scheduler

import (
	"testing"

	"duskrelay/internal/health"
)

func TestPriorityOrdering(t *testing.T) {
	s := New(3, 2)
	s.Enqueue("low", "http://example.com/low", health.EngineMediaExtractor, PriorityLow, nil)
	s.Enqueue("high", "http://example.com/high", health.EngineMediaExtractor, PriorityHigh, nil)
	s.Enqueue("normal", "http://example.com/normal", health.EngineMediaExtractor, PriorityNormal, nil)

	next, ok := s.TryStartNext()
	if !ok || next.ID != "high" {
		t.Fatalf("expected high priority to start first, got %+v ok=%v", next, ok)
	}
}

func TestEqualPriorityIsFIFO(t *testing.T) {
	s := New(3, 2)
	s.Enqueue("first", "u1", health.EngineMediaExtractor, PriorityNormal, nil)
	s.Enqueue("second", "u2", health.EngineMediaExtractor, PriorityNormal, nil)

	next, ok := s.TryStartNext()
	if !ok || next.ID != "first" {
		t.Fatalf("expected FIFO tie-break, got %+v", next)
	}
}

func TestGeneralSlotsAdmitOnlyTwo(t *testing.T) {
	s := New(2, 2)
	s.Enqueue("a", "u", health.EngineMediaExtractor, PriorityNormal, nil)
	s.Enqueue("b", "u", health.EngineMediaExtractor, PriorityNormal, nil)
	s.Enqueue("c", "u", health.EngineMediaExtractor, PriorityNormal, nil)

	if _, ok := s.TryStartNext(); !ok {
		t.Fatalf("expected first admission to succeed")
	}
	if _, ok := s.TryStartNext(); !ok {
		t.Fatalf("expected second admission to succeed")
	}
	if _, ok := s.TryStartNext(); ok {
		t.Fatalf("expected third admission to be refused (total slots=2)")
	}
}

func TestNativeSlotsAreEngineSpecific(t *testing.T) {
	s := New(3, 1)
	s.Enqueue("native-1", "u", health.EnginePNDEAccelerated, PriorityNormal, nil)
	s.Enqueue("native-2", "u", health.EnginePNDEAccelerated, PriorityNormal, nil)
	s.Enqueue("extractor", "u", health.EngineMediaExtractor, PriorityNormal, nil)

	first, ok := s.TryStartNext()
	if !ok || first.ID != "native-1" {
		t.Fatalf("expected native-1 first, got %+v", first)
	}
	// native-2 can't get the single native permit, but the extractor
	// entry behind it in queue order can still take a general slot.
	second, ok := s.TryStartNext()
	if !ok || second.ID != "extractor" {
		t.Fatalf("expected extractor to skip past the exhausted native pool, got %+v", second)
	}
}

func TestCompleteReleasesBothPermits(t *testing.T) {
	s := New(1, 1)
	s.Enqueue("a", "u", health.EnginePNDEAccelerated, PriorityNormal, nil)
	entry, ok := s.TryStartNext()
	if !ok {
		t.Fatalf("expected admission")
	}
	s.Complete(entry.ID, true)

	s.Enqueue("b", "u", health.EnginePNDEAccelerated, PriorityNormal, nil)
	if _, ok := s.TryStartNext(); !ok {
		t.Fatalf("expected slot to be free again after Complete")
	}
}

func TestPauseResumePreservesPriorityOrder(t *testing.T) {
	s := New(3, 2)
	s.Enqueue("a", "u", health.EngineMediaExtractor, PriorityNormal, nil)
	entry, _ := s.TryStartNext()
	if !s.Pause(entry.ID) {
		t.Fatalf("expected pause to succeed for an active entry")
	}
	if !s.Resume(entry.ID) {
		t.Fatalf("expected resume to succeed")
	}
	st := s.Status()
	if st.QueueLength != 1 {
		t.Fatalf("expected resumed entry back in queue, status=%+v", st)
	}
}

func TestBandwidthHintTiers(t *testing.T) {
	s := New(4, 2)
	s.Enqueue("a", "u", health.EngineMediaExtractor, PriorityCritical, nil)
	entry, _ := s.TryStartNext()

	// base=100/1=100, bonus=25 for Critical, clamped to 100.
	hint := s.BandwidthHint(entry.ID)
	if hint.SharePercent != 100 {
		t.Fatalf("expected share clamped to 100, got %d", hint.SharePercent)
	}
	if hint.MaxConnections != 8 {
		t.Fatalf("expected top connections tier, got %d", hint.MaxConnections)
	}
}

func TestSetPriorityReordersQueue(t *testing.T) {
	s := New(3, 2)
	s.Enqueue("a", "u", health.EngineMediaExtractor, PriorityLow, nil)
	s.Enqueue("b", "u", health.EngineMediaExtractor, PriorityLow, nil)
	if !s.SetPriority("b", PriorityCritical) {
		t.Fatalf("expected SetPriority to find queued entry")
	}
	next, ok := s.TryStartNext()
	if !ok || next.ID != "b" {
		t.Fatalf("expected reprioritized entry to start first, got %+v", next)
	}
}
