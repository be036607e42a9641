// Package errors classifies gorm and MySQL driver errors so upper layers can
// map them to transport errors without inspecting driver types.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// DatabaseErrorType is the classification of a persistence error.
type DatabaseErrorType int

// Classifications.
const (
	ErrorTypeUnknown DatabaseErrorType = iota
	ErrorTypeNotFound
	// ErrorTypeDuplicateKey is MySQL 1062.
	ErrorTypeDuplicateKey
	// ErrorTypeConstraintViolation covers foreign key and check constraints.
	ErrorTypeConstraintViolation
	// ErrorTypeInvalidValue covers NULL, truncated and too-long values.
	ErrorTypeInvalidValue
	// ErrorTypeDeadlock is MySQL 1213 or a lock wait timeout.
	ErrorTypeDeadlock
	ErrorTypeConnectionError
	// ErrorTypeCanceled means the request context ended before the statement finished.
	ErrorTypeCanceled
)

func (t DatabaseErrorType) String() string {
	switch t {
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeDuplicateKey:
		return "duplicate_key"
	case ErrorTypeConstraintViolation:
		return "constraint_violation"
	case ErrorTypeInvalidValue:
		return "invalid_value"
	case ErrorTypeDeadlock:
		return "deadlock"
	case ErrorTypeConnectionError:
		return "connection_error"
	case ErrorTypeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// DatabaseError is a classified persistence error.
type DatabaseError struct {
	Type         DatabaseErrorType
	OriginalErr  error
	MySQLErrCode uint16
	Message      string
}

func (e *DatabaseError) Error() string {
	if e.MySQLErrCode > 0 {
		return fmt.Sprintf("%s (MySQL error %d): %v", e.Message, e.MySQLErrCode, e.OriginalErr)
	}
	return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
}

func (e *DatabaseError) Unwrap() error {
	return e.OriginalErr
}

type mysqlRule struct {
	typ     DatabaseErrorType
	message string
}

var mysqlRules = map[uint16]mysqlRule{
	1062: {ErrorTypeDuplicateKey, "duplicate key constraint violation"},
	1451: {ErrorTypeConstraintViolation, "row is referenced by a foreign key"},
	1452: {ErrorTypeConstraintViolation, "foreign key constraint violation"},
	3819: {ErrorTypeConstraintViolation, "check constraint violation"},
	1048: {ErrorTypeInvalidValue, "column cannot be null"},
	1265: {ErrorTypeInvalidValue, "invalid or truncated value"},
	1292: {ErrorTypeInvalidValue, "incorrect date value"},
	1366: {ErrorTypeInvalidValue, "invalid or truncated value"},
	1406: {ErrorTypeInvalidValue, "data too long for column"},
	1213: {ErrorTypeDeadlock, "deadlock detected"},
	1205: {ErrorTypeDeadlock, "lock wait timeout exceeded"},
}

var connectionKeywords = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"invalid connection",
	"bad connection",
	"can't connect",
	"dial tcp",
}

// ClassifyDBError classifies err. It returns nil for a nil error and passes an
// already classified *DatabaseError through unchanged.
func ClassifyDBError(err error) *DatabaseError {
	if err == nil {
		return nil
	}

	var classified *DatabaseError
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &DatabaseError{Type: ErrorTypeNotFound, OriginalErr: err, Message: "record not found"}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &DatabaseError{Type: ErrorTypeCanceled, OriginalErr: err, Message: "statement canceled"}
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &DatabaseError{Type: ErrorTypeDuplicateKey, OriginalErr: err, Message: "duplicate key constraint violation"}
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) || errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return &DatabaseError{Type: ErrorTypeConstraintViolation, OriginalErr: err, Message: "constraint violation"}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		rule, ok := mysqlRules[mysqlErr.Number]
		if !ok {
			rule = mysqlRule{ErrorTypeUnknown, "MySQL error"}
		}
		return &DatabaseError{Type: rule.typ, OriginalErr: err, MySQLErrCode: mysqlErr.Number, Message: rule.message}
	}

	if errors.Is(err, mysql.ErrInvalidConn) || isConnectionError(err.Error()) {
		return &DatabaseError{Type: ErrorTypeConnectionError, OriginalErr: err, Message: "database connection error"}
	}

	return &DatabaseError{Type: ErrorTypeUnknown, OriginalErr: err, Message: "unknown database error"}
}

func isConnectionError(msg string) bool {
	msg = strings.ToLower(msg)
	for _, keyword := range connectionKeywords {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}

func isType(err error, t DatabaseErrorType) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == t
}

// IsNotFoundError reports a missing record.
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsDuplicateKeyError reports a unique key violation.
func IsDuplicateKeyError(err error) bool { return isType(err, ErrorTypeDuplicateKey) }

// IsDeadlockError reports a deadlock or lock wait timeout.
func IsDeadlockError(err error) bool { return isType(err, ErrorTypeDeadlock) }

// IsConnectionError reports a lost or refused database connection.
func IsConnectionError(err error) bool { return isType(err, ErrorTypeConnectionError) }

// IsIntegrityError reports a write rejected by a table constraint: duplicate
// keys, foreign keys, check constraints and NOT NULL or width violations.
func IsIntegrityError(err error) bool {
	dbErr := ClassifyDBError(err)
	if dbErr == nil {
		return false
	}
	switch dbErr.Type {
	case ErrorTypeDuplicateKey, ErrorTypeConstraintViolation, ErrorTypeInvalidValue:
		return true
	default:
		return false
	}
}
