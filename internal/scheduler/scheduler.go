// Package scheduler is the global admission and priority queue (C7):
// it decides which of several pending downloads gets to run right now,
// and which engine-specific resource pool it draws from.
//
// Grounded in original_source/scheduler.rs's GlobalScheduler (priority
// insertion order, the two-semaphore admission scheme, pause/resume
// re-queuing, bandwidth allocation tiers) translated from tokio::sync's
// async RwLock/Semaphore onto golang.org/x/sync/semaphore.Weighted guarded
// by a plain sync.Mutex, matching the teacher's batch-download worker pool
// convention (cmd/modfetch/main.go's bounded goroutine pool) generalized to
// a priority-ordered queue.
package scheduler

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"duskrelay/internal/health"
)

// Priority is the closed set of admission priorities, ordered low to high
// so that int comparison gives the right ">=" relation spec.md's queue
// invariant describes.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

const (
	defaultTotalSlots  = 3
	defaultNativeSlots = 2
)

// Entry is one queued, active, or paused download.
type Entry struct {
	ID            string
	URL           string
	Priority      Priority
	Engine        health.Engine
	QueuedAt      time.Time
	StartedAt     *time.Time
	EstimatedSize *int64

	seq int64 // tie-break for stable FIFO within a priority tier
}

// BandwidthHint is the advisory result of bandwidth_hint, spec.md §4.7.
type BandwidthHint struct {
	SharePercent   int
	MaxConnections int
	Throttled      bool
}

// Status is a point-in-time snapshot of the scheduler's queue state.
type Status struct {
	QueueLength     int
	ActiveCount     int
	PausedCount     int
	CompletedCount  int
	AvailableSlots  int64
}

const maxCompletedHistory = 500

// Scheduler owns the priority queue, the active/paused sets, and the two
// admission semaphores. A single instance is shared for the process
// lifetime (spec.md §9's singleton-facade note).
type Scheduler struct {
	mu sync.Mutex

	queue     []*Entry
	active    map[string]*Entry
	paused    map[string]*Entry
	completed []string
	nextSeq   int64

	general *semaphore.Weighted
	native  *semaphore.Weighted

	totalSlots  int64
	nativeSlots int64
}

func New(totalSlots, nativeSlots int) *Scheduler {
	if totalSlots <= 0 {
		totalSlots = defaultTotalSlots
	}
	if nativeSlots <= 0 {
		nativeSlots = defaultNativeSlots
	}
	return &Scheduler{
		queue:       nil,
		active:      make(map[string]*Entry),
		paused:      make(map[string]*Entry),
		general:     semaphore.NewWeighted(int64(totalSlots)),
		native:      semaphore.NewWeighted(int64(nativeSlots)),
		totalSlots:  int64(totalSlots),
		nativeSlots: int64(nativeSlots),
	}
}

func isNative(e health.Engine) bool {
	return e == health.EnginePNDEAccelerated || e == health.EnginePNDESafe
}

// Enqueue inserts a download in priority order; ties break FIFO by
// queued_at (spec.md §3's queue invariant).
func (s *Scheduler) Enqueue(id, url string, engine health.Engine, priority Priority, size *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	e := &Entry{
		ID:            id,
		URL:           url,
		Priority:      priority,
		Engine:        engine,
		QueuedAt:      time.Now(),
		EstimatedSize: size,
		seq:           s.nextSeq,
	}
	s.insertLocked(e)
}

// insertLocked preserves the invariant: for any two entries A before B,
// A.Priority >= B.Priority, and equal priorities keep insertion (seq) order.
func (s *Scheduler) insertLocked(e *Entry) {
	pos := len(s.queue)
	for i, q := range s.queue {
		if q.Priority < e.Priority {
			pos = i
			break
		}
	}
	s.queue = append(s.queue, nil)
	copy(s.queue[pos+1:], s.queue[pos:])
	s.queue[pos] = e
}

// TryStartNext attempts to admit the highest-priority queued entry whose
// engine has an available engine-specific permit. Returns (nil, false) if
// no general slot is free, or if every queued entry's engine pool is full.
func (s *Scheduler) TryStartNext() (*Entry, bool) {
	if !s.general.TryAcquire(1) {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, e := range s.queue {
		if !isNative(e.Engine) {
			idx = i
			break
		}
		if s.native.TryAcquire(1) {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.general.Release(1)
		return nil, false
	}

	e := s.queue[idx]
	s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	now := time.Now()
	e.StartedAt = &now
	s.active[e.ID] = e
	return e, true
}

// Complete removes a download from the active set, returns its permits, and
// records it in the (bounded) completed-id history.
func (s *Scheduler) Complete(id string, success bool) {
	s.mu.Lock()
	e, ok := s.active[id]
	if ok {
		delete(s.active, id)
		s.completed = append(s.completed, id)
		if len(s.completed) > maxCompletedHistory {
			s.completed = s.completed[len(s.completed)-maxCompletedHistory:]
		}
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.general.Release(1)
	if isNative(e.Engine) {
		s.native.Release(1)
	}
}

// Pause moves an active or queued download into the paused set, releasing
// its permits if it was active.
func (s *Scheduler) Pause(id string) bool {
	s.mu.Lock()
	if e, ok := s.active[id]; ok {
		delete(s.active, id)
		s.paused[id] = e
		s.mu.Unlock()
		s.general.Release(1)
		if isNative(e.Engine) {
			s.native.Release(1)
		}
		return true
	}
	for i, e := range s.queue {
		if e.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.paused[id] = e
			s.mu.Unlock()
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// Resume moves a paused download back into the queue at its priority
// position; it re-acquires permits only once TryStartNext admits it.
func (s *Scheduler) Resume(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.paused[id]
	if !ok {
		return false
	}
	delete(s.paused, id)
	e.StartedAt = nil
	s.insertLocked(e)
	return true
}

// SetPriority updates a download's priority in place (active) or
// re-inserts it to preserve queue ordering (queued).
func (s *Scheduler) SetPriority(id string, p Priority) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.active[id]; ok {
		e.Priority = p
		return true
	}
	for i, e := range s.queue {
		if e.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			e.Priority = p
			s.insertLocked(e)
			return true
		}
	}
	return false
}

// Cancel removes a download from whichever set currently holds it,
// releasing permits if it was active.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	if e, ok := s.active[id]; ok {
		delete(s.active, id)
		s.mu.Unlock()
		s.general.Release(1)
		if isNative(e.Engine) {
			s.native.Release(1)
		}
		return true
	}
	for i, e := range s.queue {
		if e.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.mu.Unlock()
			return true
		}
	}
	if _, ok := s.paused[id]; ok {
		delete(s.paused, id)
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()
	return false
}

// BandwidthHint computes the advisory share for an active download per
// spec.md §4.7: base = 100/active_count, plus a priority bonus, tiered into
// a connection-count recommendation.
func (s *Scheduler) BandwidthHint(id string) BandwidthHint {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.active[id]
	if !ok {
		return BandwidthHint{Throttled: true, MaxConnections: 1}
	}
	totalActive := len(s.active)
	if totalActive < 1 {
		totalActive = 1
	}
	base := 100 / totalActive
	bonus := priorityBonus(e.Priority)
	share := base + bonus
	if share > 100 {
		share = 100
	}
	return BandwidthHint{SharePercent: share, MaxConnections: connectionsTier(share)}
}

func priorityBonus(p Priority) int {
	switch p {
	case PriorityHigh:
		return 10
	case PriorityCritical:
		return 25
	default:
		return 0
	}
}

func connectionsTier(share int) int {
	switch {
	case share <= 25:
		return 2
	case share <= 50:
		return 4
	case share <= 75:
		return 6
	default:
		return 8
	}
}

// Status returns a point-in-time snapshot for scheduler.status command.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		QueueLength:    len(s.queue),
		ActiveCount:    len(s.active),
		PausedCount:    len(s.paused),
		CompletedCount: len(s.completed),
		AvailableSlots: s.totalSlots - int64(len(s.active)),
	}
}
