package attendance

import (
	"database/sql"
	"errors"
	"strings"

	attendanceerrors "tn-work/internal/attendance/errors"
	"tn-work/internal/shared/clock"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, sql.ErrNoRows) {
		return attendanceerrors.ErrSessionNotFound
	}
	if errors.Is(err, clock.ErrInvalidDate) {
		return attendanceerrors.ErrInvalidDateFormat
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == openSessionIndex {
		return attendanceerrors.ErrAlreadyClockedIn
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation && pqErr.Constraint == openSessionIndex {
		return attendanceerrors.ErrAlreadyClockedIn
	}

	// sqlite reports the columns, not the index name
	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "unique constraint failed") && strings.Contains(errMsg, "attendance_sessions.user_id") {
		return attendanceerrors.ErrAlreadyClockedIn
	}
	if strings.Contains(errMsg, "duplicate key value") && strings.Contains(errMsg, openSessionIndex) {
		return attendanceerrors.ErrAlreadyClockedIn
	}

	return err
}
