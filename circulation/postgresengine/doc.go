// Package postgresengine provides the PostgreSQL implementation of the
// circulation storage contract.
//
// The engine supports three database libraries through internal adapters:
// pgxpool.Pool (recommended), database/sql, and sqlx. Construction follows
// functional options; observability (logging, metrics, tracing) is optional
// and configured through the dependency-free interfaces of the circulation
// package.
//
// Every write path of the borrowing lifecycle runs inside one database
// transaction obtained through WithinTx. Copy allocation locks the chosen
// row with FOR UPDATE SKIP LOCKED and student rows are locked FOR UPDATE,
// so concurrent borrows, returns and sweeps cannot double-allocate a copy
// or lose a blacklist update. Serialization failures and deadlocks surface
// as circulation.ErrTxConflict and are safe to retry.
//
// The expected schema ships in schema.sql next to this file.
package postgresengine
