package audit

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entryRowColumns = []string{
	"id", "cluster_id", "name", "url", "user_id", "client_ip",
	"operation_id", "http_method", "path", "request_body",
	"response_status", "response_body", "error_message", "timestamp",
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *DBRecorder) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))
	rec, err := NewDBRecorder(db)
	require.NoError(t, err)

	return db, mock, rec
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

func TestNewDBRecorder(t *testing.T) {
	t.Run("nil database", func(t *testing.T) {
		rec, err := NewDBRecorder(nil)
		assert.Error(t, err)
		assert.Nil(t, rec)
		assert.Contains(t, err.Error(), "database connection is required")
	})

	t.Run("table creation error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnError(errors.New("boom"))

		rec, err := NewDBRecorder(db)
		assert.Error(t, err)
		assert.Nil(t, rec)
		assert.Contains(t, err.Error(), "failed to ensure audit_logs table")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBRecorder_Record(t *testing.T) {
	t.Run("successful dispatch", func(t *testing.T) {
		_, mock, rec := setupMockDB(t)

		record := &Record{
			ClusterID:      int64Ptr(1),
			UserID:         int64Ptr(7),
			ClientIP:       "10.0.0.5",
			OperationID:    "manage_getFabrics",
			HTTPMethod:     "get",
			Path:           "/api/v1/manage/fabrics",
			ResponseStatus: intPtr(200),
			ResponseBody:   []byte(`{"fabrics":[]}`),
		}

		mock.ExpectQuery("INSERT INTO audit_logs").
			WithArgs(int64(1), int64(7), "10.0.0.5", "manage_getFabrics", "GET",
				"/api/v1/manage/fabrics", nil, 200, `{"fabrics":[]}`, nil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

		err := rec.Record(context.Background(), record)
		require.NoError(t, err)
		assert.Equal(t, int64(42), record.ID)
		assert.Equal(t, "GET", record.HTTPMethod)
		assert.False(t, record.Timestamp.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("permission denial has no status", func(t *testing.T) {
		_, mock, rec := setupMockDB(t)

		record := &Record{
			OperationID:  "manage_deleteVlan",
			HTTPMethod:   "DELETE",
			Path:         "/api/v1/manage/vlans/10",
			ErrorMessage: "Edit mode required",
		}

		mock.ExpectQuery("INSERT INTO audit_logs").
			WithArgs(nil, nil, nil, "manage_deleteVlan", "DELETE",
				"/api/v1/manage/vlans/10", nil, nil, nil, "Edit mode required", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		require.NoError(t, rec.Record(context.Background(), record))
		assert.True(t, record.Denied())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert error", func(t *testing.T) {
		_, mock, rec := setupMockDB(t)

		mock.ExpectQuery("INSERT INTO audit_logs").WillReturnError(errors.New("connection reset"))

		err := rec.Record(context.Background(), &Record{HTTPMethod: "GET", Path: "/x"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert audit log")
	})

	t.Run("oversized caller values are still recorded", func(t *testing.T) {
		_, mock, rec := setupMockDB(t)

		longPath := "/api/v1/manage/vlans/" + strings.Repeat("9", 1000)
		record := &Record{
			ClientIP:     strings.Repeat("x", 100),
			OperationID:  "manage_deleteVlan",
			HTTPMethod:   "DELETE",
			Path:         longPath,
			RequestBody:  []byte(`{"name":"a\u0000b"}`),
			ErrorMessage: "upstream said \x00nope",
		}

		mock.ExpectQuery("INSERT INTO audit_logs").
			WithArgs(nil, nil, strings.Repeat("x", maxClientIPLength), "manage_deleteVlan", "DELETE",
				longPath, `{"name":"a\ufffdb"}`, nil, nil, "upstream said nope", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

		require.NoError(t, rec.Record(context.Background(), record))
		assert.Equal(t, int64(9), record.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuditLogsSchema_UnboundedCallerColumns(t *testing.T) {
	for _, column := range []string{"client_ip TEXT", "operation_id TEXT", "path TEXT NOT NULL"} {
		assert.Contains(t, auditLogsSchema, column)
	}
	assert.NotContains(t, auditLogsSchema, "VARCHAR(45)")
	assert.NotContains(t, auditLogsSchema, "VARCHAR(512)")
	assert.Contains(t, auditLogsSchema, "ALTER COLUMN client_ip TYPE TEXT")
}

func TestNormalizeClientIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.0.0.5", "10.0.0.5"},
		{" 2001:DB8::1 ", "2001:db8::1"},
		{"", ""},
		{strings.Repeat("z", 100), strings.Repeat("z", maxClientIPLength)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeClientIP(tt.in))
	}
}

func TestDBRecorder_Search(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("filters and pagination", func(t *testing.T) {
		_, mock, rec := setupMockDB(t)

		rows := sqlmock.NewRows(entryRowColumns).
			AddRow(int64(5), int64(1), "prod", "https://nd.example.com", int64(7), "10.0.0.5",
				"manage_getFabrics", "GET", "/api/v1/manage/fabrics", nil,
				int64(200), []byte(`{"ok":true}`), nil, ts)

		mock.ExpectQuery(`LEFT JOIN clusters c ON a.cluster_id = c.id WHERE 1=1 AND a.cluster_id = \$1 AND a.http_method = \$2 AND a.response_status >= \$3 AND a.response_status <= \$4 ORDER BY a.timestamp DESC, a.id DESC LIMIT \$5 OFFSET \$6`).
			WithArgs(int64(1), "GET", 200, 299, 100, 0).
			WillReturnRows(rows)

		entries, err := rec.Search(context.Background(), SearchFilter{
			ClusterID:  int64Ptr(1),
			HTTPMethod: "get",
			StatusMin:  intPtr(200),
			StatusMax:  intPtr(299),
		})
		require.NoError(t, err)
		require.Len(t, entries, 1)

		e := entries[0]
		assert.Equal(t, int64(5), e.ID)
		assert.Equal(t, "prod", e.ClusterName)
		assert.Equal(t, "https://nd.example.com", e.ClusterURL)
		require.NotNil(t, e.ResponseStatus)
		assert.Equal(t, 200, *e.ResponseStatus)
		assert.Nil(t, e.RequestBody)
		assert.JSONEq(t, `{"ok":true}`, string(e.ResponseBody))
		assert.Empty(t, e.ErrorMessage)
		assert.True(t, e.IsSuccess())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("orphaned cluster id keeps empty name", func(t *testing.T) {
		_, mock, rec := setupMockDB(t)

		rows := sqlmock.NewRows(entryRowColumns).
			AddRow(int64(9), int64(99), nil, nil, nil, nil,
				"manage_deleteVlan", "DELETE", "/api/v1/manage/vlans/10", nil,
				nil, nil, "denied", ts)
		mock.ExpectQuery("SELECT").WillReturnRows(rows)

		entries, err := rec.Search(context.Background(), SearchFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "", entries[0].ClusterName)
		assert.Nil(t, entries[0].ResponseStatus)
		assert.True(t, entries[0].IsError())
	})

	t.Run("query error", func(t *testing.T) {
		_, mock, rec := setupMockDB(t)
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("db down"))

		_, err := rec.Search(context.Background(), SearchFilter{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to search audit logs")
	})
}

func TestDBRecorder_AllIgnoresPagination(t *testing.T) {
	_, mock, rec := setupMockDB(t)

	mock.ExpectQuery(`WHERE 1=1 AND a.operation_id = \$1 ORDER BY a.timestamp DESC, a.id DESC$`).
		WithArgs("manage_getFabrics").
		WillReturnRows(sqlmock.NewRows(entryRowColumns))

	entries, err := rec.All(context.Background(), SearchFilter{OperationID: "manage_getFabrics", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBRecorder_ReadsFromReplica(t *testing.T) {
	_, primary, rec := setupMockDB(t)

	replicaDB, replica, err := sqlmock.New()
	require.NoError(t, err)
	defer replicaDB.Close()
	rec.SetReadDB(replicaDB)

	replica.ExpectQuery(`WHERE a.id = \$1`).WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(entryRowColumns))
	_, err = rec.Get(context.Background(), 9)
	assert.NoError(t, err)

	primary.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	require.NoError(t, rec.Record(context.Background(), &Record{OperationID: "manage_getFabrics", HTTPMethod: "GET", Path: "/x"}))

	assert.NoError(t, replica.ExpectationsWereMet())
	assert.NoError(t, primary.ExpectationsWereMet())
}

func TestDBRecorder_Get(t *testing.T) {
	ts := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		_, mock, rec := setupMockDB(t)
		mock.ExpectQuery(`WHERE a.id = \$1`).WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows(entryRowColumns).
				AddRow(int64(3), nil, nil, nil, nil, nil, "x", "GET", "/x", nil, int64(404), nil, nil, ts))

		entry, err := rec.Get(context.Background(), 3)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, int64(3), entry.ID)
		assert.True(t, entry.IsError())
	})

	t.Run("missing", func(t *testing.T) {
		_, mock, rec := setupMockDB(t)
		mock.ExpectQuery(`WHERE a.id = \$1`).WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows(entryRowColumns))

		entry, err := rec.Get(context.Background(), 3)
		require.NoError(t, err)
		assert.Nil(t, entry)
	})
}

func TestDBRecorder_GetStats(t *testing.T) {
	_, mock, rec := setupMockDB(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_logs a WHERE 1=1$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectQuery(`a.response_status >= 200 AND a.response_status < 300`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))
	mock.ExpectQuery(`a.response_status >= 400 OR a.error_message IS NOT NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(`GROUP BY a.http_method`).
		WillReturnRows(sqlmock.NewRows([]string{"http_method", "count"}).AddRow("GET", 8).AddRow("DELETE", 2))
	mock.ExpectQuery(`GROUP BY a.response_status`).
		WillReturnRows(sqlmock.NewRows([]string{"response_status", "count"}).AddRow(200, 6).AddRow(500, 1))

	stats, err := rec.GetStats(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.Total)
	assert.Equal(t, int64(6), stats.Successful)
	assert.Equal(t, int64(4), stats.Failed)
	assert.Equal(t, map[string]int64{"GET": 8, "DELETE": 2}, stats.ByMethod)
	assert.Equal(t, map[string]int64{"200": 6, "500": 1}, stats.ByStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_Cleanup(t *testing.T) {
	_, mock, rec := setupMockDB(t)
	store := NewDBStore(rec)
	now := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	mock.ExpectExec(`DELETE FROM audit_logs WHERE timestamp <= \$1`).
		WithArgs(now.AddDate(0, 0, -90)).
		WillReturnResult(sqlmock.NewResult(0, 12))

	deleted, err := store.Cleanup(context.Background(), RetentionPolicy{RetentionDays: 90})
	require.NoError(t, err)
	assert.Equal(t, int64(12), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_ExportCSV(t *testing.T) {
	_, mock, rec := setupMockDB(t)
	store := NewDBStore(rec)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows(entryRowColumns).
			AddRow(int64(1), int64(1), "prod", "https://nd", int64(2), "1.2.3.4",
				"manage_getFabrics", "GET", "/api/v1/manage/fabrics", nil, int64(200), nil, nil, ts))

	data, err := store.Export(context.Background(), SearchFilter{}, ExportFormatCSV)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ID,Cluster Name,Cluster URL,User ID,Operation ID,HTTP Method,Path,Response Status,Error Message,Client IP,Timestamp")
	assert.Contains(t, string(data), "1,prod,https://nd,2,manage_getFabrics,GET,/api/v1/manage/fabrics,200,,1.2.3.4,2026-03-01T12:00:00Z")
}
