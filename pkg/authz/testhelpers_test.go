package authz

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE clusters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			url TEXT NOT NULL,
			username TEXT NOT NULL,
			password TEXT NOT NULL,
			verify_ssl INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT,
			api_token_hash TEXT UNIQUE,
			is_active INTEGER NOT NULL DEFAULT 1,
			is_superuser INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			description TEXT,
			edit_mode_enabled INTEGER NOT NULL DEFAULT 0,
			is_system_role INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE role_operations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_id INTEGER NOT NULL,
			operation_name TEXT NOT NULL
		);

		CREATE TABLE user_roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			role_id INTEGER NOT NULL
		);

		CREATE TABLE user_clusters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			cluster_id INTEGER NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// seedTestData creates:
//   - clusters 1 (prod) and 2 (lab), and an inactive cluster 3 (old)
//   - alice: superuser, token "alice-token"
//   - bob: viewer role (read ops) + operator role (write op, edit mode), cluster 1 only
//   - carol: viewer role, no clusters
//   - dave: inactive, token "dave-token"
func seedTestData(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []struct {
		query string
		args  []interface{}
	}{
		{`INSERT INTO clusters (name, url, username, password) VALUES ($1, $2, $3, $4)`, []interface{}{"prod", "https://prod.example", "admin", "secret"}},
		{`INSERT INTO clusters (name, url, username, password) VALUES ($1, $2, $3, $4)`, []interface{}{"lab", "https://lab.example", "admin", "secret"}},
		{`INSERT INTO clusters (name, url, username, password, is_active) VALUES ($1, $2, $3, $4, 0)`, []interface{}{"old", "https://old.example", "admin", "secret"}},

		{`INSERT INTO users (username, api_token_hash, is_superuser) VALUES ($1, $2, 1)`, []interface{}{"alice", HashToken("alice-token")}},
		{`INSERT INTO users (username, api_token_hash) VALUES ($1, $2)`, []interface{}{"bob", HashToken("bob-token")}},
		{`INSERT INTO users (username, api_token_hash) VALUES ($1, $2)`, []interface{}{"carol", HashToken("carol-token")}},
		{`INSERT INTO users (username, api_token_hash, is_active) VALUES ($1, $2, 0)`, []interface{}{"dave", HashToken("dave-token")}},

		{`INSERT INTO roles (name, edit_mode_enabled) VALUES ($1, 0)`, []interface{}{"viewer"}},
		{`INSERT INTO roles (name, edit_mode_enabled) VALUES ($1, 1)`, []interface{}{"operator"}},
		{`INSERT INTO role_operations (role_id, operation_name) VALUES (1, $1)`, []interface{}{"manage_getFabrics"}},
		{`INSERT INTO role_operations (role_id, operation_name) VALUES (1, $1)`, []interface{}{"manage_getFabric"}},
		{`INSERT INTO role_operations (role_id, operation_name) VALUES (2, $1)`, []interface{}{"manage_createFabric"}},
		{`INSERT INTO role_operations (role_id, operation_name) VALUES (2, $1)`, []interface{}{"manage_getFabrics"}},

		{`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, []interface{}{2, 1}},
		{`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, []interface{}{2, 2}},
		{`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, []interface{}{3, 1}},
		{`INSERT INTO user_clusters (user_id, cluster_id) VALUES ($1, $2)`, []interface{}{2, 1}},
	}
	for _, s := range stmts {
		if _, err := db.Exec(s.query, s.args...); err != nil {
			t.Fatalf("Failed to seed %q: %v", s.query, err)
		}
	}
}
