// Package alerts evaluates configured rules and agent-detected anomalies
// against incoming sensor snapshots, tracks the fire/resolve lifecycle with
// per-rule cooldowns, and delivers notifications to Slack, Teams or generic
// HTTP webhooks.
package alerts
