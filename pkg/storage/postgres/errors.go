package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"p2pcollector/pkg/storage"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// mapError attaches storage sentinels to driver errors, keeping the
// original in the chain.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %w", storage.ErrDuplicateKey, err)
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %w", storage.ErrForeignKeyViolation, err)
		}
	}
	return err
}
