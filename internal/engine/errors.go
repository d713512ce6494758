package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/roach88/querycalc/internal/table"
)

// QueryError represents a failure that aborts a query run.
//
// Query errors are one of:
//   - Format failure: a data line cannot be parsed into two numbers
//   - I/O failure: an input cannot be read or the output cannot be written
//   - Resource exhaustion: no pairwise cross join fits the memory budget
//   - Canceled: the run's context was canceled or its deadline passed
//
// A run that fails with a QueryError writes no output.
type QueryError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the pipeline stage that failed ("load", "plan", "write", ...).
	Op string

	// Path is the file involved, if any.
	Path string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes query errors.
type ErrorCode string

const (
	// ErrCodeFormatFailure indicates an unparsable input line.
	ErrCodeFormatFailure ErrorCode = "FORMAT_FAILURE"

	// ErrCodeIOFailure indicates an input or output file error.
	ErrCodeIOFailure ErrorCode = "IO_FAILURE"

	// ErrCodeResourceExhaustion indicates that no pair fits the memory budget.
	ErrCodeResourceExhaustion ErrorCode = "RESOURCE_EXHAUSTION"

	// ErrCodeCanceled indicates the run stopped because its context ended.
	ErrCodeCanceled ErrorCode = "CANCELED"
)

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Code, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsFormatFailure returns true if err is a format failure.
// Uses errors.As to handle wrapped errors.
func IsFormatFailure(err error) bool {
	return hasCode(err, ErrCodeFormatFailure)
}

// IsIOFailure returns true if err is an I/O failure.
func IsIOFailure(err error) bool {
	return hasCode(err, ErrCodeIOFailure)
}

// IsResourceExhaustion returns true if err is a resource exhaustion error.
func IsResourceExhaustion(err error) bool {
	return hasCode(err, ErrCodeResourceExhaustion)
}

// IsCanceled returns true if err is a canceled run.
func IsCanceled(err error) bool {
	return hasCode(err, ErrCodeCanceled)
}

// CodeOf returns the QueryError code carried by err, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

func hasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// loadError classifies a table.Load failure.
func loadError(path string, err error) *QueryError {
	code := ErrCodeIOFailure
	if table.IsFormatError(err) {
		code = ErrCodeFormatFailure
	}
	return &QueryError{Code: code, Op: "load", Path: path, Err: err}
}

// stageError attaches a code to an error from the named stage. QueryErrors
// pass through unchanged and an ended context becomes ErrCodeCanceled.
func stageError(op string, err error) error {
	if err == nil || CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &QueryError{Code: ErrCodeCanceled, Op: op, Err: err}
	}
	return err
}

// BudgetExceededError is returned when no candidate pair fits the budget.
// The run is rejected before anything is materialized.
type BudgetExceededError struct {
	Budget    int64      // bytes available for the materialized pair
	Estimates []Estimate // every candidate that was considered
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	if len(e.Estimates) == 0 {
		return fmt.Sprintf("no pairwise cross join fits the memory budget %s", humanize.IBytes(uint64(e.Budget)))
	}
	smallest := e.Estimates[0]
	for _, est := range e.Estimates[1:] {
		if est.Bytes < smallest.Bytes {
			smallest = est
		}
	}
	return fmt.Sprintf("no pairwise cross join fits the memory budget: smallest pair %s needs %s > budget %s",
		smallest.Pair, humanize.IBytes(uint64(smallest.Bytes)), humanize.IBytes(uint64(e.Budget)))
}

// IsBudgetExceeded returns true if err is or wraps a BudgetExceededError.
func IsBudgetExceeded(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}
