package postgres

import (
	"errors"

	"github.com/SAP-F-2025/test-session-service/internal/repositories"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// invalidTextRepresentation is raised when a literal does not parse as the
// column type, e.g. "abc" compared against a uuid column.
const invalidTextRepresentation = "22P02"

func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation
}

// lookupErr maps a failed lookup by id to repositories.ErrNotFound when the
// row is missing or the id cannot name a row at all.
func lookupErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) || isInvalidText(err) {
		return repositories.ErrNotFound
	}
	return err
}
