package artifact

import "errors"

// ErrNotFound is returned when an artifact (or version) for the given
// session / id pair does not exist.
var ErrNotFound = errors.New("artifact not found")
