// Package postgres stores the durable generation queue in PostgreSQL. It
// opens the pgx-backed database/sql pool, applies the embedded goose
// migrations and maps driver errors onto package sentinels.
package postgres
