// Package history persists prediction results and alert transitions to
// PostgreSQL through database/sql and the pgx stdlib driver. When no DSN is
// configured the server uses Noop instead.
package history
