package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"milkwms/internal/core/apperror"
)

// MapError turns constraint violations into AppErrors and wraps everything else with op.
func MapError(err error, op, entity string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperror.NewDuplicate(entity, pgErr.ConstraintName, pgErr.Detail).WithCause(err)
		case "23503":
			return apperror.NewValidation(entity+" references a missing row").
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case "23514":
			return apperror.NewConflict(entity+" violates "+pgErr.ConstraintName).WithCause(err)
		case "55P03":
			return apperror.NewConcurrentModification(entity, "").WithCause(err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
