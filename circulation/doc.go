// Package circulation contains the domain model of the borrowing lifecycle:
// books, physical copies, students, borrow records and administrative audit
// entries, together with the pure calculators (due dates, overdue severity),
// the error taxonomy surfaced to callers, and the contracts every storage
// engine has to fulfill.
//
// The package is dependency-light on purpose. Persistence lives in the
// engine packages (postgresengine, memoryengine), orchestration lives in
// the lending package, and observability backends plug into the
// dependency-free interfaces defined in observability.go.
package circulation
