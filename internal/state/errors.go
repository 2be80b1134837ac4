package state

import "errors"

// ErrBlockNotFound is returned when a requested block index has not been
// persisted yet.
var ErrBlockNotFound = errors.New("state: block not found")

// ErrNoTip is returned when the tip pointer has never been written, which
// only happens on a store that has not been initialized with genesis yet.
var ErrNoTip = errors.New("state: chain tip not set")
