// Package httpapi exposes the circulation engine over a small JSON HTTP
// API: the borrowing lifecycle operations under POST and the read-only
// projections under GET. Domain sentinel errors map onto 400, 404 and 409;
// everything else is a 500.
package httpapi
