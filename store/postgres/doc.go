// Package postgres implements the store using pgx/v5 with raw SQL.
// Claims use FOR UPDATE SKIP LOCKED so concurrent dispatchers never block on
// or double-claim the same row; complete and fail address rows by primary
// key. The schema ships as embedded goose migrations.
package postgres
