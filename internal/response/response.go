// Package response maps service results and taxonomy errors onto the HTTP
// surface. Every error leaves as the structured envelope
// {error_kind, message, details}; internal causes never reach the wire.
package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/logward/logward/internal/errs"
)

// ErrorEnvelope is the error response shape shared by every endpoint.
type ErrorEnvelope struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
}

// OK sends 200 with data.
func OK(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// Created sends 201 with data.
func Created(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, data)
}

// Error sends err as the structured envelope with the status its kind maps
// to. Unrecognized errors fall back to a bare internal envelope.
func Error(c echo.Context, err error) error {
	return c.JSON(statusFor(errs.KindOf(err)), Envelope(err))
}

// Envelope builds the error envelope without sending it; bulk ingestion
// uses it for per-record outcomes.
func Envelope(err error) ErrorEnvelope {
	env := ErrorEnvelope{ErrorKind: string(errs.KindOf(err)), Message: "internal error"}
	var e *errs.Error
	if errors.As(err, &e) {
		env.Message = e.Message
		if e.Fields != nil {
			env.Details = e.Fields
		}
	}
	return env
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation, errs.KindInvalidTenantReference, errs.KindInvalidFilter:
		return http.StatusBadRequest
	case errs.KindBatchTooLarge:
		return http.StatusRequestEntityTooLarge
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	case errs.KindStorage:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
