// Package postgres implements the refresh-token store, the profile reader,
// and the audit sink on PostgreSQL via database/sql.
//
// Both the pgx stdlib driver ("pgx") and lib/pq ("postgres") are registered;
// queries use $n placeholders, RETURNING, and partial updates that are
// Postgres specific. Schema is managed with goose from embedded migrations.
package postgres
