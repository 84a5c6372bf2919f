package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the store layer distinguishes.
const (
	codeStringDataRightTruncation = "22001"
	codeInvalidTextRepresentation = "22P02"
	codeForeignKeyViolation       = "23503"
	codeUniqueViolation           = "23505"
	codeUndefinedTable            = "42P01"
	codeUndefinedColumn           = "42703"
)

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation checks for a unique constraint violation (23505).
func IsUniqueViolation(err error) bool {
	return sqlState(err) == codeUniqueViolation
}

// IsValueTooLong checks for a value exceeding its column length (22001).
func IsValueTooLong(err error) bool {
	return sqlState(err) == codeStringDataRightTruncation
}

// IsInvalidReference checks for a foreign key violation (23503) or an id that is not a
// valid UUID literal (22P02); both mean the caller named a user that cannot exist.
func IsInvalidReference(err error) bool {
	switch sqlState(err) {
	case codeForeignKeyViolation, codeInvalidTextRepresentation:
		return true
	}
	return false
}

// IsSchemaMismatch checks for a missing table or column (42P01, 42703).
func IsSchemaMismatch(err error) bool {
	switch sqlState(err) {
	case codeUndefinedTable, codeUndefinedColumn:
		return true
	}
	return false
}
