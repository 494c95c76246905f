package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cohortd/cohort/pkg/observability"
)

// Recorder accepts audit events.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}

// Logger persists audit events to the database and mirrors them to the
// structured log. Recording never panics on a nil logger field; the database
// write is the source of truth.
type Logger struct {
	db  *sql.DB
	log *observability.Logger
}

// NewLogger creates an audit logger over the given database.
func NewLogger(db *sql.DB, log *observability.Logger) *Logger {
	return &Logger{db: db, log: log}
}

// Record validates and persists one event, stamping its creation time.
func (l *Logger) Record(ctx context.Context, event *Event) error {
	if event.Action == "" {
		return fmt.Errorf("audit event action is required")
	}
	if event.Outcome == "" {
		return fmt.Errorf("audit event outcome is required")
	}
	event.CreatedAt = time.Now()

	err := l.db.QueryRowContext(ctx, `
		INSERT INTO audit_events (action, outcome, principal_id, principal_kind, application_id, study_id, detail, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		event.Action, event.Outcome, event.PrincipalID, event.PrincipalKind,
		event.ApplicationID, event.StudyID, event.Detail,
		event.IPAddress, event.UserAgent, event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	if l.log != nil {
		l.log.WithFields(map[string]interface{}{
			"audit_action":   event.Action,
			"outcome":        event.Outcome,
			"principal_id":   event.PrincipalID,
			"application_id": event.ApplicationID,
			"study_id":       event.StudyID,
			"detail":         event.Detail,
		}).Info("audit event")
	}
	return nil
}

// Query returns events matching the filters, newest first.
func (l *Logger) Query(ctx context.Context, filters Filters) ([]*Event, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, cond+" $"+strconv.Itoa(len(args)))
	}

	if filters.PrincipalID != "" {
		add("principal_id =", filters.PrincipalID)
	}
	if filters.Action != "" {
		add("action =", filters.Action)
	}
	if filters.Outcome != "" {
		add("outcome =", filters.Outcome)
	}
	if filters.Since != nil {
		add("created_at >=", *filters.Since)
	}
	if filters.Until != nil {
		add("created_at <=", *filters.Until)
	}

	query := `SELECT id, action, outcome, principal_id, principal_kind, application_id, study_id, detail, ip_address, user_agent, created_at FROM audit_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Action, &e.Outcome, &e.PrincipalID, &e.PrincipalKind,
			&e.ApplicationID, &e.StudyID, &e.Detail, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Migrate applies the audit schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id BIGSERIAL PRIMARY KEY,
			action TEXT NOT NULL,
			outcome TEXT NOT NULL,
			principal_id TEXT NOT NULL DEFAULT '',
			principal_kind TEXT NOT NULL DEFAULT '',
			application_id TEXT NOT NULL DEFAULT '',
			study_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("audit migration failed: %w", err)
	}
	return nil
}
