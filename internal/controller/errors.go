package controller

import (
	"errors"
	"fmt"
)

// ErrUnreachable is returned when the external controller cannot be reached
// or refuses the request. A failed snapshot fetch is fatal for a sync run;
// retries are the caller's (scheduler's) concern.
var ErrUnreachable = errors.New("controller: unreachable")

// ErrUnauthorized is returned when the controller rejects the access token.
// It wraps ErrUnreachable so callers treating connectivity failures uniformly
// need only one errors.Is check.
var ErrUnauthorized = fmt.Errorf("%w: unauthorized", ErrUnreachable)
