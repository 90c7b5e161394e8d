package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/loadwatch/internal/model"
)

// AlertFilter narrows List and Count. Zero fields match everything.
type AlertFilter struct {
	Kind     model.TargetKind
	Key      string
	Type     model.AlertType
	Severity model.AlertSeverity
	Resolved *bool
}

func (f AlertFilter) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}

	add := func(column string, value interface{}) {
		clauses = append(clauses, column+" = ?")
		args = append(args, value)
	}
	if f.Kind != "" {
		add("target_kind", string(f.Kind))
	}
	if f.Key != "" {
		add("target_key", f.Key)
	}
	if f.Type != "" {
		add("type", string(f.Type))
	}
	if f.Severity != "" {
		add("severity", string(f.Severity))
	}
	if f.Resolved != nil {
		add("resolved", *f.Resolved)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// AlertArchive keeps every dispatched alert in SQLite, beyond the bounded
// in-memory history.
type AlertArchive struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewAlertArchive opens (or creates) the archive database at dbPath
func NewAlertArchive(logger *zap.Logger, dbPath string) (*AlertArchive, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer
	db.SetMaxOpenConns(1)

	archive := &AlertArchive{
		logger: logger.Named("archive"),
		db:     db,
	}

	if err := archive.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return archive, nil
}

func (s *AlertArchive) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			target_kind TEXT NOT NULL,
			target_key TEXT NOT NULL,
			user_id TEXT,
			team_id TEXT,
			channel_id TEXT,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata TEXT,
			resolved BOOLEAN NOT NULL DEFAULT 0,
			resolved_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_target ON alerts(target_kind, target_key);
		CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(type);
		CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store inserts an alert
func (s *AlertArchive) Store(ctx context.Context, alert *model.Alert) error {
	var metadata sql.NullString
	if len(alert.Metadata) > 0 {
		data, err := json.Marshal(alert.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	var resolvedAt sql.NullTime
	if alert.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: alert.ResolvedAt.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (
			id, created_at, target_kind, target_key, user_id, team_id, channel_id,
			type, severity, message, metadata, resolved, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.Timestamp.UTC(),
		string(alert.Target.Kind()),
		alert.Target.Key(),
		nullString(alert.Target.UserID),
		nullString(alert.Target.TeamID),
		nullString(alert.Target.ChannelID),
		string(alert.Type),
		string(alert.Severity),
		alert.Message,
		metadata,
		alert.Resolved,
		resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store alert: %w", err)
	}
	return nil
}

// Resolve marks an archived alert resolved
func (s *AlertArchive) Resolve(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE alerts SET resolved = 1, resolved_at = ? WHERE id = ?",
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	return nil
}

const alertColumns = `id, created_at, user_id, team_id, channel_id, type, severity, message, metadata, resolved, resolved_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*model.Alert, error) {
	var alert model.Alert
	var userID, teamID, channelID, metadata sql.NullString
	var alertType, severity string
	var resolvedAt sql.NullTime

	err := row.Scan(
		&alert.ID,
		&alert.Timestamp,
		&userID,
		&teamID,
		&channelID,
		&alertType,
		&severity,
		&alert.Message,
		&metadata,
		&alert.Resolved,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	alert.Target = model.Target{UserID: userID.String, TeamID: teamID.String, ChannelID: channelID.String}
	alert.Type = model.AlertType(alertType)
	alert.Severity = model.AlertSeverity(severity)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &alert.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		alert.ResolvedAt = &t
	}
	return &alert, nil
}

// Get returns an alert by id, or nil when it is not archived
func (s *AlertArchive) Get(ctx context.Context, id string) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = ?", id)
	alert, err := scanAlert(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	return alert, nil
}

// List returns matching alerts, newest first
func (s *AlertArchive) List(ctx context.Context, filter AlertFilter, offset, limit int) ([]*model.Alert, error) {
	where, args := filter.where()
	query := "SELECT " + alertColumns + " FROM alerts" + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return alerts, nil
}

// Count returns the number of matching alerts
func (s *AlertArchive) Count(ctx context.Context, filter AlertFilter) (int, error) {
	where, args := filter.where()

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}

// DeleteBefore deletes alerts created before the given time
func (s *AlertArchive) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM alerts WHERE created_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete alerts: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old alerts",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}

// Close closes the database connection
func (s *AlertArchive) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
