package client

import (
	"errors"
	"fmt"
)

// QueryError is an upstream failure with its classification.
type QueryError struct {
	Operation  string
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error in %s (status %d): %s: %v",
			e.Class, e.Operation, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error in %s (status %d): %s",
		e.Class, e.Operation, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of err, or "" when err is not a QueryError.
func ClassOf(err error) ErrorClass {
	var qerr *QueryError
	if errors.As(err, &qerr) {
		return qerr.Class
	}
	return ""
}
