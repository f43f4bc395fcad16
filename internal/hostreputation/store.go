// Package hostreputation persists per-host download behavior so the router
// can make better concurrency and protocol choices the next time it sees a
// domain. Grounded in the teacher's internal/state package (sqlite handle
// shape, busy_timeout DSN, upsert-on-conflict style) and in the semantics of
// original_source's host_reputation.rs.
package hostreputation

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/sqlite"

	"duskrelay/internal/config"
)

const staleAfter = 30 * 24 * time.Hour

// Record is one row of the host_reputation table. Field names and defaults
// mirror spec.md's host reputation record.
type Record struct {
	Domain          string
	MaxStableConns  int
	FavoredProtocol string
	HealthScore     int
	SupportsRange   bool
	EWMASpeedKbps   int
	SuccessCount    int
	FailureCount    int
	LastUpdatedUnix int64
}

func defaultRecord(domain string) Record {
	return Record{
		Domain:          domain,
		MaxStableConns:  4,
		FavoredProtocol: "http1",
		HealthScore:     50,
		SupportsRange:   true,
		LastUpdatedUnix: time.Now().Unix(),
	}
}

// Store is a mutex-guarded handle to the host_reputation sqlite table,
// mirroring the teacher's single-*sql.DB-plus-mutex convention.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// Open creates (or reuses) the reputation database under cfg.General.DataRoot.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if cfg.General.DataRoot == "" {
		return nil, errors.New("general.data_root required")
	}
	if err := os.MkdirAll(cfg.General.DataRoot, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(cfg.General.DataRoot, "host_reputation.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout=5000", path)
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := initSchema(sqldb); err != nil {
		return nil, err
	}
	return &Store{db: sqldb, path: path}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS host_reputation (
		domain TEXT PRIMARY KEY,
		max_stable_conns INTEGER NOT NULL DEFAULT 4,
		favored_protocol TEXT NOT NULL DEFAULT 'http1',
		health_score INTEGER NOT NULL DEFAULT 50,
		supports_range INTEGER NOT NULL DEFAULT 1,
		ewma_speed_kbps INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		last_updated INTEGER NOT NULL
	)`)
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ExtractDomain returns the lowercased host of a URL, or "" if it cannot be
// parsed. Mirrors original_source's extract_domain.
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Get returns the stored record for domain, or the default record if no row
// exists. Never fails for unknown hosts.
func (s *Store) Get(domain string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(domain)
}

func (s *Store) getLocked(domain string) (Record, error) {
	var r Record
	var supportsRange int
	row := s.db.QueryRow(`SELECT domain, max_stable_conns, favored_protocol, health_score,
		supports_range, ewma_speed_kbps, success_count, failure_count, last_updated
		FROM host_reputation WHERE domain = ?`, domain)
	err := row.Scan(&r.Domain, &r.MaxStableConns, &r.FavoredProtocol, &r.HealthScore,
		&supportsRange, &r.EWMASpeedKbps, &r.SuccessCount, &r.FailureCount, &r.LastUpdatedUnix)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return defaultRecord(domain), nil
	case err != nil:
		return Record{}, err
	default:
		r.SupportsRange = supportsRange != 0
		return r, nil
	}
}

// Upsert writes the full record atomically under its primary key.
func (s *Store) Upsert(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(r)
}

func (s *Store) upsertLocked(r Record) error {
	_, err := s.db.Exec(`INSERT INTO host_reputation
		(domain, max_stable_conns, favored_protocol, health_score, supports_range,
		 ewma_speed_kbps, success_count, failure_count, last_updated)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(domain) DO UPDATE SET
			max_stable_conns=excluded.max_stable_conns,
			favored_protocol=excluded.favored_protocol,
			health_score=excluded.health_score,
			supports_range=excluded.supports_range,
			ewma_speed_kbps=excluded.ewma_speed_kbps,
			success_count=excluded.success_count,
			failure_count=excluded.failure_count,
			last_updated=excluded.last_updated`,
		r.Domain, r.MaxStableConns, r.FavoredProtocol, r.HealthScore, boolToInt(r.SupportsRange),
		r.EWMASpeedKbps, r.SuccessCount, r.FailureCount, r.LastUpdatedUnix)
	return err
}

// RecordSuccess applies spec.md §4.1's record_success update in place.
func (s *Store) RecordSuccess(domain string, speedKbps, connsUsed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.getLocked(domain)
	if err != nil {
		return err
	}
	r.SuccessCount++
	r.LastUpdatedUnix = time.Now().Unix()
	if r.EWMASpeedKbps == 0 {
		r.EWMASpeedKbps = speedKbps
	} else {
		r.EWMASpeedKbps = (r.EWMASpeedKbps*9 + speedKbps) / 10
	}
	r.HealthScore = clamp(r.HealthScore+5, 0, 100)
	if connsUsed > r.MaxStableConns {
		r.MaxStableConns = connsUsed
	}
	return s.upsertLocked(r)
}

// RecordFailure applies spec.md §4.1's record_failure update in place.
func (s *Store) RecordFailure(domain string, throttled, rangeError bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.getLocked(domain)
	if err != nil {
		return err
	}
	r.FailureCount++
	r.LastUpdatedUnix = time.Now().Unix()
	r.HealthScore = clamp(r.HealthScore-10, 0, 100)
	if throttled {
		r.MaxStableConns = maxInt(1, r.MaxStableConns-2)
	}
	if rangeError {
		r.SupportsRange = false
	}
	return s.upsertLocked(r)
}

// RecordCollapse applies spec.md §4.1's record_collapse update in place.
func (s *Store) RecordCollapse(domain string, newCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.getLocked(domain)
	if err != nil {
		return err
	}
	if newCount < r.MaxStableConns {
		r.MaxStableConns = newCount
	}
	r.LastUpdatedUnix = time.Now().Unix()
	return s.upsertLocked(r)
}

// CleanupStale deletes records older than 30 days with fewer than 5
// successes, returning the number of rows removed.
func (s *Store) CleanupStale() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-staleAfter).Unix()
	res, err := s.db.Exec(`DELETE FROM host_reputation WHERE last_updated < ? AND success_count < 5`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// All returns every stored record, most recently updated first. Diagnostic
// use only (mirrors get_all_reputations in original_source).
func (s *Store) All() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT domain, max_stable_conns, favored_protocol, health_score,
		supports_range, ewma_speed_kbps, success_count, failure_count, last_updated
		FROM host_reputation ORDER BY last_updated DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		var supportsRange int
		if err := rows.Scan(&r.Domain, &r.MaxStableConns, &r.FavoredProtocol, &r.HealthScore,
			&supportsRange, &r.EWMASpeedKbps, &r.SuccessCount, &r.FailureCount, &r.LastUpdatedUnix); err != nil {
			return nil, err
		}
		r.SupportsRange = supportsRange != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
