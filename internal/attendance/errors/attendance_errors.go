package attendanceerrors

import (
	"net/http"

	"tn-work/internal/shared/apperror"
)

var (
	// ErrAlreadyClockedIn is the ConflictError of a second check-in while a session is open.
	ErrAlreadyClockedIn = apperror.New(
		apperror.CodeConflict,
		"Already clocked in, clock out first",
		http.StatusConflict,
	)
	ErrSessionNotFound = apperror.New(
		apperror.CodeNotFound,
		"Attendance session not found",
		http.StatusNotFound,
	)
	ErrInvalidUserID = apperror.New(
		apperror.CodeInvalidInput,
		"Invalid user ID",
		http.StatusBadRequest,
	)
	ErrInvalidDateFormat = apperror.New(
		apperror.CodeInvalidInput,
		"Invalid date format, expected YYYY-MM-DD",
		http.StatusBadRequest,
	)
	ErrInvalidMonthFormat = apperror.New(
		apperror.CodeInvalidInput,
		"Invalid month format, expected YYYY-MM",
		http.StatusBadRequest,
	)
	ErrInvalidDateRange = apperror.New(
		apperror.CodeInvalidInput,
		"Start date must not be after end date",
		http.StatusBadRequest,
	)
	ErrDateRangeTooLarge = apperror.New(
		apperror.CodeInvalidInput,
		"Date range must not exceed 92 days",
		http.StatusBadRequest,
	)
)
