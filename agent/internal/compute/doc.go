// Package compute turns raw sensor readings into predictions.
//
// score.go provides the pure Compute(Input) function: health score from the
// latest temperature, RUL from the noise trend, a temperature forecast, the
// weighted composite score and the resulting device status. All arithmetic
// lives in pkg/predict.
//
// anomaly.go checks the newest reading of each metric against fixed
// thresholds, a 1.5x spike rule and a 3-sigma band over the window.
//
// engine.go provides the stateful Engine that keeps a rolling window per
// sensor, tracks uptime over the last 20 scrapes, applies a 5-minute
// per-metric anomaly cooldown and accepts threshold changes at runtime.
// Engine.Process accepts an injectable time.Time so tests are deterministic.
package compute
