package models

import "errors"

// ErrImmutableRow is returned when code tries to mutate an append-only table.
var ErrImmutableRow = errors.New("row is append-only")
