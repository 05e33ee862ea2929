package predict

import "errors"

var (
	// ErrInsufficientData is returned when a series holds fewer samples than
	// an operation needs (2 for a fit).
	ErrInsufficientData = errors.New("predict: insufficient data")

	// ErrDegenerateInput is returned when an input would otherwise produce a
	// division by zero or a non-finite result: zero x-variance, a zero
	// threshold, equal normalisation bounds, or NaN/Inf values.
	ErrDegenerateInput = errors.New("predict: degenerate input")
)
