// Package memoryengine provides an in-memory implementation of the
// circulation storage contract.
//
// It is the backend selected for tests, demos and local development - the
// replacement for the old process-wide "use mock data" toggle. A single
// mutex serializes transactions and every unit of work runs against a
// cloned state that is swapped in only on commit, so rollback semantics
// match the Postgres engine: a failed borrow never leaves a copy flipped
// without its record.
package memoryengine
