package persistence

import "errors"

// ErrNotFound is returned by Load when a key has no blob, or when the blob
// present was malformed and has been quarantined.
var ErrNotFound = errors.New("persistence: key not found")
