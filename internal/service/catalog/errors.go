package catalog

import "errors"

// Sentinel errors for the catalog layer.
var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrRuleNotFound    = errors.New("conflict rule not found")
)
