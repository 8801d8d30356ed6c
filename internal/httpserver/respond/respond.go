// Package respond writes JSON bodies and coded errors for the HTTP layer.
package respond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperr "github.com/emoradar/emoradar/internal/errors"
	"github.com/emoradar/emoradar/internal/logger"
)

// MaxBodyBytes caps request bodies read by DecodeJSON.
const MaxBodyBytes = 64 << 10

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error *apperr.Error `json:"error"`
}

// JSON writes v with status.
func JSON(w http.ResponseWriter, status int, v any, log logger.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && log != nil {
		log.Debug("failed to write response", logger.Error(err))
	}
}

// OK writes a 200 response.
func OK(w http.ResponseWriter, v any, log logger.Logger) { JSON(w, http.StatusOK, v, log) }

// Created writes a 201 response.
func Created(w http.ResponseWriter, v any, log logger.Logger) { JSON(w, http.StatusCreated, v, log) }

// Error maps err to its status. Coded errors keep their message and details;
// anything else is logged and reported as a generic internal error.
func Error(w http.ResponseWriter, err error, log logger.Logger) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		if log != nil {
			log.Error("unhandled error", logger.Error(err))
		}
		e = apperr.Internal("internal server error", nil)
	} else if e.Code == apperr.CodeInternal && log != nil {
		log.Error("internal error", logger.Error(err))
	}
	JSON(w, e.HTTPStatus(), ErrorBody{Error: e}, log)
}

// DecodeJSON reads one JSON value from r into v. Empty, oversized or malformed
// bodies return a validation error.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperr.Validation("request body is empty")
		case errors.As(err, &maxErr):
			return apperr.Validationf("request body exceeds %d bytes", maxErr.Limit)
		default:
			return apperr.Validationf("invalid JSON body: %v", err)
		}
	}
	return nil
}
