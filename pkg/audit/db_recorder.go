package audit

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// DBRecorder implements audit recording to PostgreSQL
type DBRecorder struct {
	db   *sql.DB
	read *sql.DB
}

// NewDBRecorder creates a new database-backed audit recorder
func NewDBRecorder(db *sql.DB) (*DBRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	r := &DBRecorder{db: db}

	if err := r.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}

	return r, nil
}

// SetReadDB routes searches, stats and exports to a read replica
func (r *DBRecorder) SetReadDB(db *sql.DB) {
	r.read = db
}

func (r *DBRecorder) reader() *sql.DB {
	if r.read != nil {
		return r.read
	}
	return r.db
}

// auditLogsSchema creates audit_logs. Caller-influenced columns are TEXT so
// an oversized value can never make the insert fail; the ALTER upgrades
// tables created with the older fixed-width columns.
const auditLogsSchema = `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		cluster_id BIGINT,
		user_id BIGINT,
		client_ip TEXT,
		operation_id TEXT,
		http_method VARCHAR(10) NOT NULL,
		path TEXT NOT NULL,
		request_body JSONB,
		response_status INTEGER,
		response_body JSONB,
		error_message TEXT,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	ALTER TABLE audit_logs
		ALTER COLUMN client_ip TYPE TEXT,
		ALTER COLUMN operation_id TYPE TEXT,
		ALTER COLUMN path TYPE TEXT;

	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_cluster_id ON audit_logs(cluster_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_operation_id ON audit_logs(operation_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_client_ip ON audit_logs(client_ip);
`

// ensureTable creates the audit_logs table if it doesn't exist
func (r *DBRecorder) ensureTable() error {
	_, err := r.db.Exec(auditLogsSchema)
	return err
}

// maxClientIPLength bounds a client address that did not parse as an IP
const maxClientIPLength = 64

// sanitize makes a record storable. Postgres rejects NUL bytes in text and
// \u0000 escapes in jsonb.
func sanitize(record *Record) {
	record.ClientIP = normalizeClientIP(record.ClientIP)
	record.OperationID = stripNUL(record.OperationID)
	record.Path = stripNUL(record.Path)
	record.ErrorMessage = stripNUL(record.ErrorMessage)
	record.RequestBody = stripJSONNUL(record.RequestBody)
	record.ResponseBody = stripJSONNUL(record.ResponseBody)
}

func normalizeClientIP(s string) string {
	s = strings.TrimSpace(s)
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}
	s = stripNUL(s)
	if len(s) > maxClientIPLength {
		s = strings.ToValidUTF8(s[:maxClientIPLength], "")
	}
	return s
}

func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

func stripJSONNUL(b json.RawMessage) json.RawMessage {
	if !bytes.Contains(b, []byte(`\u0000`)) {
		return b
	}
	return bytes.ReplaceAll(b, []byte(`\u0000`), []byte(`\ufffd`))
}

// Record inserts one audit record
func (r *DBRecorder) Record(ctx context.Context, record *Record) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	record.HTTPMethod = strings.ToUpper(record.HTTPMethod)
	sanitize(record)

	query := `
		INSERT INTO audit_logs (
			cluster_id, user_id, client_ip, operation_id, http_method, path,
			request_body, response_status, response_body, error_message, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		nullInt64(record.ClusterID),
		nullInt64(record.UserID),
		nullString(record.ClientIP),
		nullString(record.OperationID),
		record.HTTPMethod,
		record.Path,
		nullJSON(record.RequestBody),
		nullInt(record.ResponseStatus),
		nullJSON(record.ResponseBody),
		nullString(record.ErrorMessage),
		record.Timestamp,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

const entryColumns = `
	a.id, a.cluster_id, c.name, c.url, a.user_id, a.client_ip,
	a.operation_id, a.http_method, a.path, a.request_body,
	a.response_status, a.response_body, a.error_message, a.timestamp
`

// whereClause renders the non-pagination part of a filter
func whereClause(filter SearchFilter, argCount int) (string, []interface{}, int) {
	clause := " WHERE 1=1"
	args := []interface{}{}

	if filter.ClusterID != nil {
		clause += fmt.Sprintf(" AND a.cluster_id = $%d", argCount)
		args = append(args, *filter.ClusterID)
		argCount++
	}

	if filter.UserID != nil {
		clause += fmt.Sprintf(" AND a.user_id = $%d", argCount)
		args = append(args, *filter.UserID)
		argCount++
	}

	if filter.OperationID != "" {
		clause += fmt.Sprintf(" AND a.operation_id = $%d", argCount)
		args = append(args, filter.OperationID)
		argCount++
	}

	if filter.HTTPMethod != "" {
		clause += fmt.Sprintf(" AND a.http_method = $%d", argCount)
		args = append(args, strings.ToUpper(filter.HTTPMethod))
		argCount++
	}

	if filter.StatusMin != nil {
		clause += fmt.Sprintf(" AND a.response_status >= $%d", argCount)
		args = append(args, *filter.StatusMin)
		argCount++
	}

	if filter.StatusMax != nil {
		clause += fmt.Sprintf(" AND a.response_status <= $%d", argCount)
		args = append(args, *filter.StatusMax)
		argCount++
	}

	if filter.StartTime != nil {
		clause += fmt.Sprintf(" AND a.timestamp >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}

	if filter.EndTime != nil {
		clause += fmt.Sprintf(" AND a.timestamp <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}

	return clause, args, argCount
}

// Search returns a page of entries, newest first
func (r *DBRecorder) Search(ctx context.Context, filter SearchFilter) ([]*Entry, error) {
	filter = filter.Normalize()
	return r.query(ctx, filter, true)
}

// All returns every entry matching the filter, ignoring pagination
func (r *DBRecorder) All(ctx context.Context, filter SearchFilter) ([]*Entry, error) {
	return r.query(ctx, filter, false)
}

func (r *DBRecorder) query(ctx context.Context, filter SearchFilter, paginate bool) ([]*Entry, error) {
	where, args, argCount := whereClause(filter, 1)

	query := "SELECT" + entryColumns +
		" FROM audit_logs a LEFT JOIN clusters c ON a.cluster_id = c.id" +
		where + " ORDER BY a.timestamp DESC, a.id DESC"

	if paginate {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.reader().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return entries, nil
}

// Get retrieves a single entry by id, nil when absent
func (r *DBRecorder) Get(ctx context.Context, id int64) (*Entry, error) {
	query := "SELECT" + entryColumns +
		" FROM audit_logs a LEFT JOIN clusters c ON a.cluster_id = c.id WHERE a.id = $1"

	rows, err := r.reader().QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanEntry(rows)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		entry                         Entry
		clusterID, userID             sql.NullInt64
		clusterName, clusterURL       sql.NullString
		clientIP, operationID, errMsg sql.NullString
		status                        sql.NullInt64
		requestBody, responseBody     []byte
	)

	err := s.Scan(
		&entry.ID, &clusterID, &clusterName, &clusterURL, &userID, &clientIP,
		&operationID, &entry.HTTPMethod, &entry.Path, &requestBody,
		&status, &responseBody, &errMsg, &entry.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	if clusterID.Valid {
		entry.ClusterID = &clusterID.Int64
	}
	if userID.Valid {
		entry.UserID = &userID.Int64
	}
	if status.Valid {
		code := int(status.Int64)
		entry.ResponseStatus = &code
	}
	entry.ClusterName = clusterName.String
	entry.ClusterURL = clusterURL.String
	entry.ClientIP = clientIP.String
	entry.OperationID = operationID.String
	entry.ErrorMessage = errMsg.String
	if len(requestBody) > 0 {
		entry.RequestBody = requestBody
	}
	if len(responseBody) > 0 {
		entry.ResponseBody = responseBody
	}

	return &entry, nil
}

// GetStats retrieves audit statistics for an optional time range
func (r *DBRecorder) GetStats(ctx context.Context, startTime, endTime *time.Time) (*Stats, error) {
	stats := &Stats{
		ByMethod: make(map[string]int64),
		ByStatus: make(map[string]int64),
	}

	where, args, _ := whereClause(SearchFilter{StartTime: startTime, EndTime: endTime}, 1)
	from := " FROM audit_logs a" + where

	err := r.reader().QueryRowContext(ctx, "SELECT COUNT(*)"+from, args...).Scan(&stats.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	err = r.reader().QueryRowContext(ctx,
		"SELECT COUNT(*)"+from+" AND a.response_status >= 200 AND a.response_status < 300",
		args...).Scan(&stats.Successful)
	if err != nil {
		return nil, fmt.Errorf("failed to get successful count: %w", err)
	}

	err = r.reader().QueryRowContext(ctx,
		"SELECT COUNT(*)"+from+" AND (a.response_status >= 400 OR a.error_message IS NOT NULL)",
		args...).Scan(&stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed count: %w", err)
	}

	rows, err := r.reader().QueryContext(ctx, "SELECT a.http_method, COUNT(*)"+from+" GROUP BY a.http_method", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get counts by method: %w", err)
	}
	for rows.Next() {
		var method string
		var count int64
		if err := rows.Scan(&method, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByMethod[method] = count
	}
	rows.Close()

	rows, err = r.reader().QueryContext(ctx,
		"SELECT a.response_status, COUNT(*)"+from+" AND a.response_status IS NOT NULL GROUP BY a.response_status",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get counts by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status int
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.ByStatus[strconv.Itoa(status)] = count
	}

	return stats, rows.Err()
}

// DeleteThrough removes entries stamped at or before cutoff
func (r *DBRecorder) DeleteThrough(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE timestamp <= $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit logs: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database recorder
func (r *DBRecorder) Close() error {
	// The connection is shared and owned by the caller
	return nil
}

func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
