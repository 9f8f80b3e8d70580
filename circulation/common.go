package circulation

import (
	"time"
)

// Instead of implementing full value objects, I'm using some alias types and helper methods here ...

// CatalogCodeString is the ISBN-like code printed on a physical copy.
type CatalogCodeString = string

// ClassNameString is the school class a student belongs to.
type ClassNameString = string

// Instant is a point in time as stored by the engines.
type Instant = time.Time

// ToInstant normalizes a time to UTC with microsecond precision,
// matching what the storage engines persist.
func ToInstant(t time.Time) Instant {
	return t.UTC().Truncate(time.Microsecond)
}
