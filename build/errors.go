package build

import "errors"

var (
	ErrInvalidState        = errors.New("build: operation not valid in the current state")
	ErrOpenJob             = errors.New("build: could not open swarm job")
	ErrNotExported         = errors.New("build: scene has not been exported")
	ErrUnknownMapping      = errors.New("build: result for unknown mapping")
	ErrMappingSizeMismatch = errors.New("build: lightmap size does not match mapping")
)
