package violation

import "errors"

var (
	ErrNotFound          = errors.New("violation not found")
	ErrInvalidTransition = errors.New("violation is not pending")
)
