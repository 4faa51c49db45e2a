package lock

import "errors"

// ErrBusy is returned by Do when the user already has an operation in flight.
var ErrBusy = errors.New("operation already in progress")
