package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite access for the compliance master catalog, the
// override ledger, pending notices, and pipeline run bookkeeping.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS compliance_master (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            due_descriptor TEXT,
            frequency TEXT,
            category TEXT,
            created_at TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS compliance_overrides (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            master_id INTEGER NOT NULL,
            year INTEGER NOT NULL,
            new_due_date TIMESTAMP NOT NULL,
            reason TEXT,
            is_permanent INTEGER NOT NULL DEFAULT 0,
            notice_id TEXT,
            created_at TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS notices (
            id TEXT PRIMARY KEY,
            source TEXT,
            body TEXT,
            status TEXT,
            skip_reason TEXT,
            created_at TIMESTAMP,
            updated_at TIMESTAMP
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_notices_source ON notices(source);`,
		`CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            status TEXT,
            processed INTEGER DEFAULT 0,
            appended INTEGER DEFAULT 0,
            skipped INTEGER DEFAULT 0,
            error TEXT,
            started_at TIMESTAMP,
            finished_at TIMESTAMP
        );`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Notice statuses.
const (
	NoticePending   = "pending"
	NoticeProcessed = "processed"
	NoticeSkipped   = "skipped"
)

// Master is an entry in the compliance master catalog.
type Master struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	DueDescriptor string `json:"due_descriptor"`
	Frequency     string `json:"frequency"`
	Category      string `json:"category"`
}

// Override is one append-only entry in the override ledger.
type Override struct {
	ID          int64     `json:"id"`
	MasterID    int64     `json:"master_id"`
	Year        int       `json:"year"`
	NewDueDate  time.Time `json:"new_due_date"`
	Reason      string    `json:"reason"`
	IsPermanent bool      `json:"is_permanent"`
	NoticeID    string    `json:"notice_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notice is a pending regulatory text item awaiting reconciliation.
type Notice struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Body       string    `json:"body"`
	Status     string    `json:"status"`
	SkipReason *string   `json:"skip_reason"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Run records one scheduler-triggered pipeline pass.
type Run struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Processed  int        `json:"processed"`
	Appended   int        `json:"appended"`
	Skipped    int        `json:"skipped"`
	Error      string     `json:"error"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

func (s *Store) InsertMaster(ctx context.Context, m Master, ts time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO compliance_master(name, due_descriptor, frequency, category, created_at) VALUES(?,?,?,?,?)`,
		m.Name, m.DueDescriptor, m.Frequency, m.Category, ts)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) ListMasters(ctx context.Context) ([]Master, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, COALESCE(due_descriptor,''), COALESCE(frequency,''), COALESCE(category,'') FROM compliance_master ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Master
	for rows.Next() {
		var m Master
		if err := rows.Scan(&m.ID, &m.Name, &m.DueDescriptor, &m.Frequency, &m.Category); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertNotice records a pending notice. Re-ingesting the same source is a
// no-op so the watcher can fire duplicate events safely.
func (s *Store) InsertNotice(ctx context.Context, n Notice, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO notices(id, source, body, status, created_at, updated_at) VALUES(?,?,?,?,?,?)`,
		n.ID, n.Source, n.Body, NoticePending, ts, ts)
	return err
}

func (s *Store) ListPendingNotices(ctx context.Context) ([]Notice, error) {
	return s.listNoticesWhere(ctx, `WHERE status=? ORDER BY created_at ASC`, NoticePending)
}

func (s *Store) ListNotices(ctx context.Context, limit int) ([]Notice, error) {
	return s.listNoticesWhere(ctx, `ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *Store) listNoticesWhere(ctx context.Context, clause string, args ...any) ([]Notice, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source, body, status, skip_reason, created_at, updated_at FROM notices `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Notice
	for rows.Next() {
		var n Notice
		var skip sql.NullString
		if err := rows.Scan(&n.ID, &n.Source, &n.Body, &n.Status, &skip, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		if skip.Valid {
			n.SkipReason = &skip.String
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNoticeSkipped records why an item was dropped without an override.
func (s *Store) MarkNoticeSkipped(ctx context.Context, noticeID, reason string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notices SET status=?, skip_reason=?, updated_at=? WHERE id=?`,
		NoticeSkipped, reason, ts, noticeID)
	return err
}

// AppendOverride writes the ledger entry and flips the source notice to
// processed in a single transaction. The ledger is append-only; nothing
// ever updates a row in compliance_overrides.
func (s *Store) AppendOverride(ctx context.Context, ov Override, ts time.Time) (Override, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Override{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO compliance_overrides(master_id, year, new_due_date, reason, is_permanent, notice_id, created_at) VALUES(?,?,?,?,?,?,?)`,
		ov.MasterID, ov.Year, ov.NewDueDate, ov.Reason, boolInt(ov.IsPermanent), ov.NoticeID, ts)
	if err != nil {
		return Override{}, err
	}
	if ov.NoticeID != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE notices SET status=?, updated_at=? WHERE id=?`, NoticeProcessed, ts, ov.NoticeID); err != nil {
			return Override{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Override{}, err
	}
	id, _ := res.LastInsertId()
	ov.ID = id
	ov.CreatedAt = ts
	return ov, nil
}

func (s *Store) ListOverrides(ctx context.Context, limit int) ([]Override, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, master_id, year, new_due_date, COALESCE(reason,''), is_permanent, COALESCE(notice_id,''), created_at FROM compliance_overrides ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Override
	for rows.Next() {
		var ov Override
		var perm int
		if err := rows.Scan(&ov.ID, &ov.MasterID, &ov.Year, &ov.NewDueDate, &ov.Reason, &perm, &ov.NoticeID, &ov.CreatedAt); err != nil {
			return nil, err
		}
		ov.IsPermanent = perm != 0
		out = append(out, ov)
	}
	return out, rows.Err()
}

func (s *Store) StartRun(ctx context.Context, runID string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs(id, status, started_at) VALUES(?,?,?)`, runID, "running", ts)
	return err
}

func (s *Store) FinishRun(ctx context.Context, runID, status, errMsg string, processed, appended, skipped int, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET status=?, error=?, processed=?, appended=?, skipped=?, finished_at=? WHERE id=?`,
		status, errMsg, processed, appended, skipped, ts, runID)
	return err
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, status, processed, appended, skipped, COALESCE(error,''), started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Status, &r.Processed, &r.Appended, &r.Skipped, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Health returns err if DB not reachable.
func (s *Store) Health(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
