// Package config provides database connection settings for the integration
// tests: the test DSN and ready-to-use pool configurations for the pgx,
// database/sql and sqlx adapters.
package config
