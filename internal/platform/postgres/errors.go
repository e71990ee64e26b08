package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Errors returned by MapError
var (
	ErrUnavailable = errors.New("database unavailable")
	ErrConstraint  = errors.New("database constraint violated")
)

// PostgreSQL error classes
const (
	// integrityConstraintClass covers unique, foreign key, check and not null violations
	integrityConstraintClass = "23"

	// connectionExceptionClass covers failures to reach the server
	connectionExceptionClass = "08"
)

// MapError wraps a database error with a sentinel describing its class,
// keeping the original error in the chain.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case integrityConstraintClass:
			return fmt.Errorf("%w (%s): %w", ErrConstraint, pgErr.ConstraintName, err)
		case connectionExceptionClass:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return err
}
