// Package api implements the HTTP REST API of the server.
//
// New(deps) returns an http.Handler that serves:
//
//	GET  /api/v1/health                       fleet score, status and per-status counts
//	GET  /api/v1/sensors                      all live sensors ([]SensorResponse)
//	GET  /api/v1/sensors/{id}                 one sensor with trend and alerts; 404 if unknown or stale
//	GET  /api/v1/sensors/{id}/report.pdf      health report as PDF
//	GET  /api/v1/sensors/{id}/report.xlsx     health report as XLSX
//	GET  /api/v1/sensors/{id}/history         persisted predictions (?limit=)
//	GET  /api/v1/alerts                       firing and recently resolved alerts
//	GET  /api/v1/snapshot                     fleet health plus every live sensor
//	POST /api/v1/predict                      ad-hoc fit, forecast, health score and RUL
//
// Every endpoint other than the reports answers JSON and returns 405 for
// other methods.
package api
