// Package audit keeps an append-only sqlite log of security-relevant
// events. Writing is best-effort: the daemon never fails an operation
// because the audit log is unavailable.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Event names a security-relevant occurrence.
type Event string

const (
	EventPinSet            Event = "pin_set"
	EventPinChanged        Event = "pin_changed"
	EventPinVerifyOK       Event = "pin_verify_ok"
	EventPinVerifyFail     Event = "pin_verify_fail"
	EventRateLimited       Event = "rate_limited"
	EventLockout           Event = "lockout"
	EventRecoveryInitiated Event = "recovery_initiated"
	EventRecoveryCancelled Event = "recovery_cancelled"
	EventRecoveryCompleted Event = "recovery_completed"
	EventUnlockGranted     Event = "unlock_granted"
	EventScheduleChanged   Event = "schedule_changed"
	EventReset             Event = "reset"
	EventHealRestoredFile  Event = "heal_restored_binary"
	EventHealRecreatedTask Event = "heal_recreated_task"
)

// Entry is one recorded audit event.
type Entry struct {
	ID        int64
	Event     Event
	Detail    map[string]any
	CreatedAt time.Time
}

// Log is a sqlite-backed audit trail. A nil *Log is valid and records
// nothing, so components can take it as an optional dependency.
type Log struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the audit database. Use ":memory:" in tests.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event TEXT NOT NULL,
		detail TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_event ON audit(event);
	CREATE INDEX IF NOT EXISTS idx_audit_created ON audit(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize audit schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Record appends one event. Detail must not contain secrets; callers never
// pass PIN material here.
func (l *Log) Record(ctx context.Context, event Event, detail map[string]any) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var detailJSON []byte
	if detail != nil {
		var err error
		detailJSON, err = json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
	}

	_, err := l.db.ExecContext(ctx,
		"INSERT INTO audit (event, detail, created_at) VALUES (?, ?, ?)",
		string(event), detailJSON, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Recent returns up to limit newest entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.QueryContext(ctx,
		"SELECT id, event, detail, created_at FROM audit ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var detailJSON []byte
		var createdUnix int64
		if err := rows.Scan(&e.ID, &e.Event, &detailJSON, &createdUnix); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal audit detail: %w", err)
			}
		}
		e.CreatedAt = time.Unix(createdUnix, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountSince reports how many events of the given type occurred at or
// after the instant.
func (l *Log) CountSince(ctx context.Context, event Event, since time.Time) (int, error) {
	if l == nil {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit WHERE event = ? AND created_at >= ?",
		string(event), since.Unix(),
	).Scan(&n)
	return n, err
}

// Close shuts the database down.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
