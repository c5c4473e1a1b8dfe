package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matchmaking/internal/pair"
	"github.com/oggyb/muzz-matchmaking/internal/utils/pagination"
)

// Kind separates business rejections from failures worth retrying.
type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindConflict    Kind = "CONFLICT"
	KindIneligible  Kind = "INELIGIBLE"
	KindRateLimited Kind = "RATE_LIMITED"
	KindNotFound    Kind = "NOT_FOUND"
	KindTransient   Kind = "TRANSIENT"
	KindInternal    Kind = "INTERNAL"
)

// Error is the domain error carried from the engine up to the transport.
type Error struct {
	Kind    Kind
	Message string
	Reasons []string
	// RetryAfter hints when a rate-limited caller may try again.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func Ineligible(reasons []string) *Error {
	return &Error{
		Kind:    KindIneligible,
		Message: "pair is not eligible: " + strings.Join(reasons, ","),
		Reasons: reasons,
	}
}

func RateLimited(msg string) *Error {
	return &Error{Kind: KindRateLimited, Message: msg}
}

// RateLimitedUntil is RateLimited with the time the window resets.
func RateLimitedUntil(msg string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: msg, RetryAfter: retryAfter}
}

func NotFound(resource string, id any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", resource, id)}
}

func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Message: "store temporarily unavailable, retry", Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf returns the kind of a domain error, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a domain error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// IsRetryable reports whether the caller should blindly retry.
func IsRetryable(err error) bool {
	return IsKind(err, KindTransient) || IsTransientStoreError(err)
}

// Classify turns raw store errors into domain errors. Domain errors and nil
// pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	switch {
	case errors.Is(err, pair.ErrSelfPair):
		return &Error{Kind: KindValidation, Message: "cannot pair a user with themselves", Err: err}
	case errors.Is(err, pair.ErrZeroID):
		return &Error{Kind: KindValidation, Message: "user id must be non-zero", Err: err}
	case errors.Is(err, pagination.ErrInvalidToken):
		return &Error{Kind: KindValidation, Message: "invalid pagination token", Err: err}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Kind: KindNotFound, Message: "record not found", Err: err}
	case IsDuplicateKey(err):
		return &Error{Kind: KindConflict, Message: "duplicate record", Err: err}
	case IsTransientStoreError(err):
		return Transient(err)
	}
	return err
}

// IsDuplicateKey reports a unique-constraint violation from any supported driver.
func IsDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysqldrv.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsTransientStoreError reports lock timeouts, deadlocks and serialization
// failures.
func IsTransientStoreError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	var myErr *mysqldrv.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1205 || myErr.Number == 1213
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
