package probe

import "errors"

// ErrBuild indicates the task could not be turned into a request.
// Callers should use errors.Is() to check for it.
var ErrBuild = errors.New("probe: cannot build request")
