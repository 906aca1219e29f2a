package models

import "errors"

// Error classes shared by every stage of a repack run.
var (
	// ErrNotFound marks a requested object that is absent or cannot be exposed.
	ErrNotFound = errors.New("not found")
	// ErrResolution marks an external file that cannot be mapped to a path.
	ErrResolution = errors.New("resolution failure")
	// ErrStructural marks a package whose layout breaks the repacker's assumptions.
	ErrStructural = errors.New("structural inconsistency")
	// ErrIO marks an unreadable input or unwritable output.
	ErrIO = errors.New("io failure")
)
