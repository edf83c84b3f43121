package rdbms

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/trellisml/trellis/internal/status"
)

func TestWrapDBError(t *testing.T) {
	s := &Store{dialect: SQLiteDialect()}
	tests := []struct {
		name     string
		err      error
		wantCode status.Code
	}{
		{"nil stays nil", nil, status.OK},
		{"no rows becomes not found", sql.ErrNoRows, status.NotFound},
		{"wrapped no rows becomes not found", fmt.Errorf("probe: %w", sql.ErrNoRows), status.NotFound},
		{"unique violation becomes already exists", errors.New("UNIQUE constraint failed: types.name"), status.AlreadyExists},
		{"coded error passes through", status.FailedPreconditionf("stored type differs"), status.FailedPrecondition},
		{"unclassified is internal", errors.New("disk I/O error"), status.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.wrapDBError("test op", tt.err)
			if code := status.CodeOf(got); code != tt.wantCode {
				t.Fatalf("wrapDBError code = %v, want %v (err: %v)", code, tt.wantCode, got)
			}
		})
	}
}

func TestWrapDBErrorKeepsOperationContext(t *testing.T) {
	s := &Store{dialect: SQLiteDialect()}
	err := s.wrapDBError("create artifact", errors.New("disk I/O error"))
	if !strings.Contains(err.Error(), "create artifact") {
		t.Errorf("error %q does not name the operation", err)
	}
	if !strings.Contains(err.Error(), "disk I/O error") {
		t.Errorf("error %q lost the cause", err)
	}
}

func TestWrapDBErrorPreservesCodedCause(t *testing.T) {
	s := &Store{dialect: SQLiteDialect()}
	cause := status.NotFoundf("no artifact with id 4")
	got := s.wrapDBError("outer op", cause)
	if got != cause {
		t.Errorf("coded error was rewrapped: %v", got)
	}
}
