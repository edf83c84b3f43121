package rdbms

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/trellisml/trellis/internal/status"
)

// wrapDBError wraps a database error with operation context and classifies
// it: sql.ErrNoRows becomes NotFound and uniqueness violations become
// AlreadyExists, so callers never match on driver strings. Errors that
// already carry a status code pass through untouched.
func (s *Store) wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	var coded *status.Error
	if errors.As(err, &coded) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return status.NotFoundf("%s: %v", op, err)
	}
	if s.dialect.IsUniqueViolation(err) {
		return status.AlreadyExistsf("%s: %v", op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// wrapDBErrorf is wrapDBError with a formatted operation description.
func (s *Store) wrapDBErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return s.wrapDBError(fmt.Sprintf(format, args...), err)
}
