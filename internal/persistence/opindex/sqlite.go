package opindex

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"simbridge.dev/internal/schema"
)

// SQLiteIndex is an observational secondary index over received ops and
// resolution outcomes. Writes are handed to a single writer goroutine
// through a buffered channel and dropped when the indexer falls behind; the
// op journal remains the source of truth and the dispatch thread never
// stalls on the database.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqOp reqKind = iota + 1
	reqResolution
)

type req struct {
	kind reqKind

	op  opRow
	res resolutionRow
}

type opRow struct {
	Seq      uint64
	Type     string
	EntityID int64
	Raw      []byte
}

type resolutionRow struct {
	Seq       uint64
	RefEntity int64
	RefOffset uint32
	Waiters   int
}

func Open(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ops (
			seq INTEGER PRIMARY KEY,
			op_type TEXT NOT NULL,
			entity_id INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ops_entity_seq ON ops(entity_id, seq);`,
		`CREATE TABLE IF NOT EXISTS resolutions (
			seq INTEGER NOT NULL,
			ref_entity INTEGER NOT NULL,
			ref_offset INTEGER NOT NULL,
			waiters INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (seq, ref_entity, ref_offset)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_resolutions_ref ON resolutions(ref_entity, ref_offset);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteOp implements bridge.OpIndex. Never blocks.
func (s *SQLiteIndex) WriteOp(seq uint64, opType string, entityID int64, raw []byte) {
	if s == nil || s.closed.Load() {
		return
	}
	r := req{kind: reqOp, op: opRow{Seq: seq, Type: opType, EntityID: entityID, Raw: append([]byte(nil), raw...)}}
	select {
	case s.ch <- r:
	default:
	}
}

// WriteResolution implements bridge.OpIndex. Never blocks.
func (s *SQLiteIndex) WriteResolution(ref schema.Ref, waiters int, seq uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	r := req{kind: reqResolution, res: resolutionRow{Seq: seq, RefEntity: ref.Entity, RefOffset: ref.Offset, Waiters: waiters}}
	select {
	case s.ch <- r:
	default:
	}
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		switch r.kind {
		case reqOp:
			_, _ = s.db.Exec(
				`INSERT OR REPLACE INTO ops (seq, op_type, entity_id, raw_json) VALUES (?, ?, ?, ?)`,
				int64(r.op.Seq), r.op.Type, r.op.EntityID, string(r.op.Raw),
			)
		case reqResolution:
			_, _ = s.db.Exec(
				`INSERT OR REPLACE INTO resolutions (seq, ref_entity, ref_offset, waiters, recorded_at) VALUES (?, ?, ?, ?, ?)`,
				int64(r.res.Seq), r.res.RefEntity, int64(r.res.RefOffset), r.res.Waiters,
				time.Now().UTC().Format(time.RFC3339),
			)
		}
	}
}

// OpCount is a read-model helper for tools and tests.
func (s *SQLiteIndex) OpCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM ops`).Scan(&n)
	return n, err
}

// OpsForEntity returns the op sequence numbers recorded for one entity.
func (s *SQLiteIndex) OpsForEntity(entityID int64) ([]uint64, error) {
	rows, err := s.db.Query(`SELECT seq FROM ops WHERE entity_id = ? ORDER BY seq`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		out = append(out, uint64(seq))
	}
	return out, rows.Err()
}

// ResolutionCount counts recorded resolution events.
func (s *SQLiteIndex) ResolutionCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM resolutions`).Scan(&n)
	return n, err
}

// Flush waits until the writer has drained everything queued so far.
// Intended for tests and shutdown paths.
func (s *SQLiteIndex) Flush() {
	for len(s.ch) > 0 {
		time.Sleep(time.Millisecond)
	}
}
