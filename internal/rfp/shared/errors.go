package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

// MapDBError translates driver errors into the shared sentinel errors.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return internalShared.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503":
			return fmt.Errorf("%w: %s", internalShared.ErrConflict, pgErr.ConstraintName)
		case "23514", "22P02":
			return fmt.Errorf("%w: %s", internalShared.ErrValidation, pgErr.Message)
		}
	}
	return err
}
