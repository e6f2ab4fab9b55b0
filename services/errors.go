package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ErrorCode is the stable machine-readable code returned to clients.
type ErrorCode string

const (
	CodeValidation           ErrorCode = "VALIDATION_ERROR"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeForbidden            ErrorCode = "FORBIDDEN"
	CodeMaxJudgesPerIdea     ErrorCode = "MAX_JUDGES_PER_IDEA"
	CodeJudgeCapacityReached ErrorCode = "JUDGE_CAPACITY_REACHED"
	CodeAssignmentConflict   ErrorCode = "ASSIGNMENT_CONFLICT"
	CodeAssignmentLocked     ErrorCode = "ASSIGNMENT_LOCKED"
	CodeInvalidFileType      ErrorCode = "INVALID_FILE_TYPE"
	CodeFileTooLarge         ErrorCode = "FILE_TOO_LARGE"
	CodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// AppError is a domain error that the request boundary turns into a JSON response.
type AppError struct {
	Code    ErrorCode
	Message string
	Status  int
	Details any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func newAppError(code ErrorCode, status int, msg string, details any) *AppError {
	return &AppError{Code: code, Status: status, Message: msg, Details: details}
}

func ValidationError(msg string, details any) *AppError {
	return newAppError(CodeValidation, http.StatusBadRequest, msg, details)
}

func NotFound(msg string) *AppError {
	return newAppError(CodeNotFound, http.StatusNotFound, msg, nil)
}

func Forbidden(msg string) *AppError {
	return newAppError(CodeForbidden, http.StatusForbidden, msg, nil)
}

func MaxJudgesPerIdea(max, assigned, requested int) *AppError {
	return newAppError(CodeMaxJudgesPerIdea, http.StatusConflict,
		fmt.Sprintf("idea already has %d of %d judges; %d more requested", assigned, max, requested),
		map[string]int{"max_judges": max, "assigned": assigned, "requested": requested, "available_slots": max - assigned})
}

func JudgeCapacityReached(breaches []CapacityBreach) *AppError {
	return newAppError(CodeJudgeCapacityReached, http.StatusConflict,
		"one or more judges have reached their capacity", breaches)
}

func AssignmentConflict(msg string, err error) *AppError {
	e := newAppError(CodeAssignmentConflict, http.StatusConflict, msg, nil)
	e.Err = err
	return e
}

func AssignmentLocked() *AppError {
	return newAppError(CodeAssignmentLocked, http.StatusLocked, "assignment is locked", nil)
}

func InvalidFileType(ext string, allowed []string) *AppError {
	return newAppError(CodeInvalidFileType, http.StatusBadRequest,
		fmt.Sprintf("file type %q is not accepted", ext), map[string]any{"allowed": allowed})
}

func FileTooLarge(limit int64) *AppError {
	return newAppError(CodeFileTooLarge, http.StatusBadRequest,
		fmt.Sprintf("file exceeds the %d byte limit", limit), map[string]int64{"max_bytes": limit})
}

// CodeOf returns the code carried by err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// isDuplicateKey detects a unique index violation, translated or raw.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		const uniqueIndexErrNo uint16 = 1062
		return me.Number == uniqueIndexErrNo
	}
	return false
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(msg)
	}
	return err
}

// InvalidRequest reports a body that could not be bound.
func InvalidRequest(err error) *AppError {
	return ValidationError("invalid request body", fieldErrors(err))
}
