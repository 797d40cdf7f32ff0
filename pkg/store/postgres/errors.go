package postgres

import "errors"

// errNotFound is returned (wrapped) when a lookup or mutation targets an id
// that does not exist in the store.
var errNotFound = errors.New("postgres store: not found")
