package abtest

import "errors"

// Sentinel errors returned by the experimentation engine.
var (
	// ErrNotFound indicates the experiment id references nothing.
	ErrNotFound = errors.New("experiment not found")

	// ErrInvalidWeights indicates variant weights do not sum to 100.
	ErrInvalidWeights = errors.New("variant weights must sum to 100")

	// ErrNoVariants indicates an experiment was created without variants.
	ErrNoVariants = errors.New("experiment needs at least one variant")
)
