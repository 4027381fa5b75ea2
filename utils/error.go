package utils

import (
	"errors"
	"net/http"
)

// StatusError is an error carrying the HTTP status it should be reported with.
type StatusError struct {
	error
	status int
}

// Status returns the status code of the error.
func (se StatusError) Status() int {
	return se.status
}

func (se StatusError) Unwrap() error {
	return se.error
}

// NewStatusError creates a new StatusError.
func NewStatusError(err error, s int) error {
	return StatusError{error: err, status: s}
}

// StatusOf returns the status attached to err, or 500 when there is none.
func StatusOf(err error) int {
	var se StatusError
	if errors.As(err, &se) {
		return se.status
	}
	return http.StatusInternalServerError
}
