// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: the `agent:` section; the server section is ignored here
//   - AgentConfig: server_endpoint, scrape/ship intervals, buffer_size,
//     window_size, forecast_points, rul_scale, metrics_addr, sensors [], server_auth
//   - Sensor: id, type (prometheus|mqtt|emulator), endpoint, topic, auth, tls,
//     thresholds
//   - Thresholds: warning/critical bands for temperature, noise_level and dead_pixels
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none); Key(), Token() and
//     Password() resolve secrets from environment variables
//
// Load(path) reads the YAML file, applies defaults (30s scrape, 15s ship,
// 1000 buffer, 120-sample window, 10 forecast points, RUL scale 10), fills
// missing threshold bands, then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It re-adds the watch after each event
// so atomic-save editors (rename then create) keep being tracked.
package config
