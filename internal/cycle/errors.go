package cycle

import "errors"

// ErrInvariantViolation marks a structurally broken cycle: a repeated pool,
// a leg sequence that does not chain or close, a leg referencing a pool the
// market does not know, or a duplicate canonical id where uniqueness is
// required. These are programming or data-corruption errors, not runtime
// conditions, and callers treat them as fatal.
var ErrInvariantViolation = errors.New("cycle invariant violation")
