package management

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"killrelay/pkg/metrics"
)

type AuditLogger struct {
	db  *sql.DB
	now func() time.Time
}

func NewAuditLogger(db *sql.DB) *AuditLogger {
	return &AuditLogger{db: db, now: time.Now}
}

func (a *AuditLogger) CreateAuditLog(ctx context.Context, entry *AuditLog) (err error) {
	defer func(start time.Time) { observe("create_audit_log", start, err) }(time.Now())

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = a.now()
	}

	oldValue, err := nullableJSON(entry.OldValue)
	if err != nil {
		return err
	}
	newValue, err := nullableJSON(entry.NewValue)
	if err != nil {
		return err
	}

	var ipAddress *string
	if entry.IPAddress != "" {
		ipAddress = &entry.IPAddress
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO filter_set_audit_logs (id, filter_set_id, action, old_value, new_value, changed_by, ip_address, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		entry.ID, entry.FilterSetID, entry.Action,
		oldValue, newValue,
		entry.ChangedBy, ipAddress, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit entry: %w", err)
	}
	return nil
}

// GetAuditLogs returns the newest entries first.
func (a *AuditLogger) GetAuditLogs(ctx context.Context, filterSetID string, limit int) (logs []AuditLog, err error) {
	defer func(start time.Time) { observe("get_audit_logs", start, err) }(time.Now())

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, filter_set_id, action, old_value, new_value, changed_by, ip_address, timestamp
		FROM filter_set_audit_logs
		WHERE filter_set_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, filterSetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs = make([]AuditLog, 0)
	for rows.Next() {
		var (
			log                AuditLog
			oldValue, newValue []byte
			ipAddress          sql.NullString
		)
		if err := rows.Scan(&log.ID, &log.FilterSetID, &log.Action, &oldValue, &newValue, &log.ChangedBy, &ipAddress, &log.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if len(oldValue) > 0 {
			if err := json.Unmarshal(oldValue, &log.OldValue); err != nil {
				return nil, fmt.Errorf("failed to decode old value: %w", err)
			}
		}
		if len(newValue) > 0 {
			if err := json.Unmarshal(newValue, &log.NewValue); err != nil {
				return nil, fmt.Errorf("failed to decode new value: %w", err)
			}
		}
		log.IPAddress = ipAddress.String
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return logs, nil
}

func nullableJSON(v map[string]interface{}) (*string, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit value: %w", err)
	}
	s := string(raw)
	return &s, nil
}

func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IncDatabaseQuery("management", "postgres", operation, status)
	metrics.ObserveDatabaseQueryDuration("management", "postgres", operation, time.Since(start))
}
