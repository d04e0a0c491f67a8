package store

import "errors"

// ErrNotFound is returned for lookups by an absent id. Routine absence,
// not a fault; call sites branch on it rather than fail.
var ErrNotFound = errors.New("entry not found")
