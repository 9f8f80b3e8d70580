// Package lending implements the borrowing lifecycle: borrow and return,
// the overdue sweep with severity-tiered blacklisting, blacklist
// reconciliation, manual unblacklisting and the best-effort audit trail.
//
// All write operations run inside one storage transaction and retry
// transaction conflicts with exponential backoff. Business rejections
// (overdue books, active blacklist, no available copy, ...) surface as the
// sentinel errors of the circulation package and are never retried.
package lending
