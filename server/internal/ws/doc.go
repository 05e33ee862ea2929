// Package ws implements the WebSocket hub that feeds the live dashboard.
//
// Hub.Run broadcasts the fleet snapshot every broadcast_interval and
// Hub.Notify pushes alert transitions as they happen. Messages share one
// envelope:
//
//	{"event": "snapshot", "data": { /* GET /api/v1/snapshot */ }}
//	{"event": "alert",    "data": { /* alerts.Alert */ }}
//
// The server mounts the hub at /ws/stream behind the REST auth middleware.
package ws
