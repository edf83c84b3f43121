package rdbms

import (
	"errors"
	"testing"
)

func TestSQLiteDialectClassification(t *testing.T) {
	d := SQLiteDialect()
	tests := []struct {
		name      string
		err       error
		retryable bool
		unique    bool
	}{
		{"nil", nil, false, false},
		{"busy", errors.New("sqlite3: database is locked (5)"), true, false},
		{"table locked", errors.New("database table is locked"), true, false},
		{"busy code", errors.New("SQLITE_BUSY"), true, false},
		{"bad connection", errors.New("driver: bad connection"), true, false},
		{"unique", errors.New("constraint failed: UNIQUE constraint failed: types.type_kind (1555)"), false, true},
		{"plain failure", errors.New("no such table: artifacts"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
			if got := d.IsUniqueViolation(tt.err); got != tt.unique {
				t.Errorf("IsUniqueViolation(%v) = %v, want %v", tt.err, got, tt.unique)
			}
		})
	}
}

func TestMySQLDialectClassification(t *testing.T) {
	d := MySQLDialect()
	tests := []struct {
		name      string
		err       error
		retryable bool
		unique    bool
	}{
		{"nil", nil, false, false},
		{"bad connection", errors.New("driver: bad connection"), true, false},
		{"invalid connection", errors.New("invalid connection"), true, false},
		{"deadlock", errors.New("Error 1213: Deadlock found when trying to get lock; try restarting transaction"), true, false},
		{"lock wait", errors.New("Error 1205: Lock wait timeout exceeded"), true, false},
		{"server gone", errors.New("MySQL server has gone away"), true, false},
		{"unique", errors.New("Error 1062: Duplicate entry 'pipeline-1' for key 'contexts.type_id'"), false, true},
		{"plain failure", errors.New("Error 1146: Table 'trellis.artifacts' doesn't exist"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
			if got := d.IsUniqueViolation(tt.err); got != tt.unique {
				t.Errorf("IsUniqueViolation(%v) = %v, want %v", tt.err, got, tt.unique)
			}
		})
	}
}

func TestTextIndexColumn(t *testing.T) {
	if got := SQLiteDialect().TextIndexColumn("uri", 255); got != "uri" {
		t.Errorf("sqlite TextIndexColumn = %q, want uri", got)
	}
	if got := MySQLDialect().TextIndexColumn("uri", 255); got != "uri(255)" {
		t.Errorf("mysql TextIndexColumn = %q, want uri(255)", got)
	}
}

func TestDropIndexStmt(t *testing.T) {
	if got := SQLiteDialect().DropIndexStmt("artifacts", "idx_artifacts_uri"); got != "DROP INDEX IF EXISTS idx_artifacts_uri" {
		t.Errorf("sqlite DropIndexStmt = %q", got)
	}
	if got := MySQLDialect().DropIndexStmt("artifacts", "idx_artifacts_uri"); got != "DROP INDEX idx_artifacts_uri ON artifacts" {
		t.Errorf("mysql DropIndexStmt = %q", got)
	}
}
