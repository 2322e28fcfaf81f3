package shared

import (
	"fmt"
	"math"
)

// Tolerance is the maximum drift allowed when comparing monetary totals.
const Tolerance = 0.01

// WithinTolerance reports whether two monetary amounts agree within Tolerance.
func WithinTolerance(a, b float64) bool {
	return math.Abs(a-b) < Tolerance
}

// ValidationError reports rejected input: imbalanced entries, malformed
// lines, dates outside the posting lock window, missing fields.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return "ledger: validation: " + e.Detail
}

// Validationf builds a ValidationError with a formatted detail message.
func Validationf(format string, args ...any) error {
	return &ValidationError{Detail: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown account code, journal entry, or bill.
type NotFoundError struct {
	Detail string
}

func (e *NotFoundError) Error() string {
	return "ledger: not found: " + e.Detail
}

// NotFoundf builds a NotFoundError with a formatted detail message.
func NotFoundf(format string, args ...any) error {
	return &NotFoundError{Detail: fmt.Sprintf(format, args...)}
}

// ConflictError reports duplicate codes or numbers, reversing an already
// reversed entry, or posting an already posted bill batch.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string {
	return "ledger: conflict: " + e.Detail
}

// Conflictf builds a ConflictError with a formatted detail message.
func Conflictf(format string, args ...any) error {
	return &ConflictError{Detail: fmt.Sprintf(format, args...)}
}

// ArithmeticError reports rounding drift beyond the allowed tolerance after
// summation.
type ArithmeticError struct {
	Detail string
}

func (e *ArithmeticError) Error() string {
	return "ledger: arithmetic: " + e.Detail
}

// Arithmeticf builds an ArithmeticError with a formatted detail message.
func Arithmeticf(format string, args ...any) error {
	return &ArithmeticError{Detail: fmt.Sprintf(format, args...)}
}
