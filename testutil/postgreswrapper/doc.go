// Package postgreswrapper spins up a circulation store against the test
// database for one of the three supported adapters, selected via the
// ADAPTER_TYPE environment variable (pgx.pool, sql.db or sqlx.db).
package postgreswrapper
