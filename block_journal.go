package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	blockStatusAccepted  = "accepted"
	blockStatusRejected  = "rejected"
	blockStatusPending   = "pending"
	blockStatusSubmitted = "submitted"
	blockStatusStale     = "stale"
)

// blockRecord is one submitblock attempt. Key identifies the solved header
// (header hash plus nonce) so a retry of the same solution updates the row
// instead of adding another.
type blockRecord struct {
	Key        string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Height     int64
	HeaderHash string
	JobID      string
	Worker     string
	PayoutAddr string
	BlockHex   string
	Status     string
	Reason     string
}

func blockRecordKey(headerHash, nonceHex string) string {
	return strings.ToLower(headerHash) + ":" + strings.ToLower(strings.TrimPrefix(nonceHex, "0x"))
}

// blockJournal persists every block submission in SQLite. Submissions that
// failed because the node was unreachable stay "pending" until the replayer
// resolves them. A nil *blockJournal is a no-op.
type blockJournal struct {
	db *sql.DB
	mu sync.Mutex
}

func blockJournalPath(dataDir string) string {
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	return filepath.Join(dataDir, "state", "blocks.db")
}

func openBlockJournal(dbPath string) (*blockJournal, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_foreign_keys=1&_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureJournalTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &blockJournal{db: db}, nil
}

func ensureJournalTables(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS block_submissions (
			submission_key TEXT PRIMARY KEY,
			created_at_unix INTEGER NOT NULL,
			updated_at_unix INTEGER NOT NULL,
			height INTEGER NOT NULL,
			header_hash TEXT NOT NULL,
			job_id TEXT,
			worker TEXT,
			payout_addr TEXT,
			block_hex TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT
		)
	`); err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS block_submissions_status_idx ON block_submissions (status)`); err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS block_submissions_created_idx ON block_submissions (created_at_unix)`); err != nil {
		return err
	}
	return nil
}

func (j *blockJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record inserts rec or, when the same solution was recorded before,
// updates its status and reason.
func (j *blockJournal) Record(ctx context.Context, rec blockRecord) error {
	if j == nil || j.db == nil {
		return nil
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO block_submissions (
			submission_key, created_at_unix, updated_at_unix, height, header_hash,
			job_id, worker, payout_addr, block_hex, status, reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(submission_key) DO UPDATE SET
			updated_at_unix = excluded.updated_at_unix,
			status = excluded.status,
			reason = excluded.reason
	`, rec.Key, rec.CreatedAt.Unix(), now.Unix(), rec.Height, rec.HeaderHash,
		rec.JobID, rec.Worker, rec.PayoutAddr, rec.BlockHex, rec.Status, rec.Reason)
	return err
}

func (j *blockJournal) SetStatus(ctx context.Context, key, status, reason string) error {
	if j == nil || j.db == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.ExecContext(ctx,
		`UPDATE block_submissions SET status = ?, reason = ?, updated_at_unix = ? WHERE submission_key = ?`,
		status, reason, time.Now().Unix(), key)
	return err
}

// Pending returns submissions still waiting for a reachable node, oldest
// first.
func (j *blockJournal) Pending(ctx context.Context) ([]blockRecord, error) {
	return j.query(ctx, `WHERE status = ? ORDER BY created_at_unix ASC`, blockStatusPending)
}

// Recent returns the newest submissions regardless of status.
func (j *blockJournal) Recent(ctx context.Context, limit int) ([]blockRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return j.query(ctx, `ORDER BY created_at_unix DESC, rowid DESC LIMIT ?`, limit)
}

func (j *blockJournal) query(ctx context.Context, tail string, args ...any) ([]blockRecord, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT submission_key, created_at_unix, updated_at_unix, height, header_hash,
			COALESCE(job_id, ''), COALESCE(worker, ''), COALESCE(payout_addr, ''),
			block_hex, status, COALESCE(reason, '')
		FROM block_submissions `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []blockRecord
	for rows.Next() {
		var rec blockRecord
		var created, updated int64
		if err := rows.Scan(&rec.Key, &created, &updated, &rec.Height, &rec.HeaderHash,
			&rec.JobID, &rec.Worker, &rec.PayoutAddr, &rec.BlockHex, &rec.Status, &rec.Reason); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Unix(created, 0)
		rec.UpdatedAt = time.Unix(updated, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}
