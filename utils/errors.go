package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forumkit/forumkit/config"
)

// AppError classifies a failure so handlers can map it onto the HTTP envelope
// without inspecting storage-level errors.
type AppError struct {
	Status int
	Msg    string
	Err    error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *AppError) Unwrap() error { return e.Err }

// ErrValidation flags missing or malformed input.
func ErrValidation(msg string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Msg: msg}
}

// ErrNotFound flags a missing or soft-deleted referenced entity.
func ErrNotFound(msg string) *AppError {
	return &AppError{Status: http.StatusNotFound, Msg: msg}
}

// ErrForbidden flags a failed authorization predicate.
func ErrForbidden(msg string) *AppError {
	return &AppError{Status: http.StatusForbidden, Msg: msg}
}

// ErrConflict flags a uniqueness violation, e.g. a duplicate category name.
// Conflicts map onto 400 like other input errors.
func ErrConflict(msg string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Msg: msg}
}

// ErrInternal wraps a store or infrastructure failure.
func ErrInternal(msg string, err error) *AppError {
	return &AppError{Status: http.StatusInternalServerError, Msg: msg, Err: err}
}

// WriteError converts any error into the JSON envelope. Underlying detail of
// 500 responses is exposed only outside release mode.
func WriteError(ctx *gin.Context, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = ErrInternal("internal server error", err)
	}

	msg := appErr.Msg
	if appErr.Status == http.StatusInternalServerError {
		if Sugar != nil {
			Sugar.Errorw("request failed", "path", ctx.FullPath(), "err", appErr.Error())
		}
		if config.Get().GinMode == "release" {
			msg = "internal server error"
		} else {
			msg = appErr.Error()
		}
	}
	Fail(ctx, appErr.Status, msg)
}
