package records

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/marcelrenan-web/Fisiotech-app/internal/config"
	_ "modernc.org/sqlite"
)

// AuditEvent is one recorded entry of the dictation timeline.
type AuditEvent struct {
	ID        int64
	SessionID string
	Kind      string
	Payload   []byte
	CreatedAt time.Time
}

// Store is the SQLite-backed record store adapter: patient records (whole
// record replace on save), and an audit timeline of dictation activity with
// retention pruning.
type Store struct {
	db    *sql.DB
	cfg   config.RecordStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store. A corrupt database file is renamed aside and
// replaced with an empty one rather than failing session start.
func Open(ctx context.Context, cfg config.RecordStoreConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := openAndInit(ctx, cfg.Path)
	if err != nil {
		log.Warn("record store unreadable, starting empty",
			slog.String("path", cfg.Path),
			slog.String("error", err.Error()))
		if renameErr := os.Rename(cfg.Path, cfg.Path+".corrupt"); renameErr != nil && !os.IsNotExist(renameErr) {
			return nil, fmt.Errorf("move corrupt record store aside: %w", renameErr)
		}
		db, err = openAndInit(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("recreate record store: %w", err)
		}
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if cfg.VacuumOnStart {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("record store vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("record store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func openAndInit(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	ddl := `
CREATE TABLE IF NOT EXISTS patient_records (
    patient_id TEXT NOT NULL,
    record_type TEXT NOT NULL,
    section TEXT NOT NULL,
    content TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (patient_id, record_type, section)
);
CREATE TABLE IF NOT EXISTS audit_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    kind TEXT,
    payload BLOB,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_session_created ON audit_events(session_id, created_at);
`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return db, nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRecord replaces every persisted section of one patient record in a
// single transaction. There are no partial updates.
func (s *Store) SaveRecord(ctx context.Context, patientID, recordType string, sections map[string]string) error {
	patient := normalizeKey(patientID)
	kind := normalizeKey(recordType)
	if patient == "" || kind == "" {
		return fmt.Errorf("patient id and record type must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM patient_records WHERE patient_id = ? AND record_type = ?`,
		patient, kind); err != nil {
		return err
	}
	now := s.clock().UTC()
	for section, content := range sections {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO patient_records(patient_id, record_type, section, content, updated_at)
			 VALUES(?, ?, ?, ?, ?)`,
			patient, kind, section, content, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadRecord returns every persisted section of one patient record. A
// record that was never saved yields an empty map, not an error: opening it
// starts a blank form.
func (s *Store) LoadRecord(ctx context.Context, patientID, recordType string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT section, content FROM patient_records WHERE patient_id = ? AND record_type = ?`,
		normalizeKey(patientID), normalizeKey(recordType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sections := make(map[string]string)
	for rows.Next() {
		var section, content string
		if err := rows.Scan(&section, &content); err != nil {
			return nil, err
		}
		sections[section] = content
	}
	return sections, rows.Err()
}

// ListPatients returns every distinct patient id, sorted.
func (s *Store) ListPatients(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT patient_id FROM patient_records ORDER BY patient_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		patients = append(patients, id)
	}
	return patients, rows.Err()
}

// ResolvePatient maps a spoken patient name to a stored patient id. The
// spoken name must be contained in the stored id (case-insensitive); the
// first match in sorted order wins.
func (s *Store) ResolvePatient(ctx context.Context, spoken string) (string, bool) {
	q := normalizeKey(spoken)
	if q == "" {
		return "", false
	}
	patients, err := s.ListPatients(ctx)
	if err != nil {
		s.log.Warn("list patients failed", slog.String("error", err.Error()))
		return "", false
	}
	sort.Strings(patients)
	for _, id := range patients {
		if strings.Contains(id, q) {
			return id, true
		}
	}
	return "", false
}

// AppendAudit writes one dictation timeline event.
func (s *Store) AppendAudit(ctx context.Context, sessionID, kind string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events(session_id, kind, payload, created_at) VALUES(?, ?, ?, ?)`,
		sessionID, kind, payload, s.clock().UTC())
	return err
}

// ListAudit retrieves up to limit audit events for a session, oldest first.
func (s *Store) ListAudit(ctx context.Context, sessionID string, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, kind, payload, created_at
		 FROM audit_events WHERE session_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.Payload, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies the configured audit retention. Patient records are never
// pruned.
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM audit_events WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM audit_events WHERE session_id IN (
			    SELECT session_id FROM (
			        SELECT session_id, MAX(created_at) AS last_seen
			        FROM audit_events GROUP BY session_id
			        ORDER BY last_seen DESC LIMIT -1 OFFSET ?
			    )
			 )`, s.cfg.MaxSessions); err != nil {
			return err
		}
	}
	return nil
}

func normalizeKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
