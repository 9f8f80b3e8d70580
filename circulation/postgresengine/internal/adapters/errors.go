package adapters

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE codes that mark a transaction worth retrying.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

// IsRetryableTxError reports whether err is a serialization failure or
// deadlock, regardless of which driver produced it.
func IsRetryableTxError(err error) bool {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == sqlstateSerializationFailure || pgxErr.Code == sqlstateDeadlockDetected
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return code == sqlstateSerializationFailure || code == sqlstateDeadlockDetected
	}

	return false
}
