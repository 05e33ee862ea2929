// Package predict is the predictive analytics engine: it turns a short window
// of sensor readings into forward-looking health indicators.
//
// trend.go fits an ordinary-least-squares line over (x, y) samples and
// extrapolates it into a Forecast. score.go maps a current reading and a
// critical threshold to a 0–100 health score. rul.go projects the number of
// steps until the fitted trend crosses a threshold (remaining useful life).
//
// Every function is pure and allocation-local: nothing is cached between
// calls unless the caller opts into a FitCache (cache.go). Inputs are never
// mutated, so a Series may be shared between goroutines without locking.
//
// Division artifacts never escape: a zero-variance series or a zero threshold
// yields ErrDegenerateInput, and too few samples yields ErrInsufficientData.
// EstimateRUL reports its qualitative outcomes through the sentinel values
// RULInsufficientHistory (99) and RULNoDegradation (999).
//
// composite.go carries the weighted multi-metric health score and the device
// status classification used by the agent.
package predict
