// Package store holds the latest SensorSnapshot per sensor in memory, with
// TTL eviction, plus a short ring of health/RUL trend points per sensor for
// the REST API and reports. Durable history lives in package history.
package store
