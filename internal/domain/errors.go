package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrStreamerNotFound = errors.New("streamer not found")
)

// ConfigError reports a configuration problem: an unknown category, a
// malformed rule. It is fatal for the affected operation and never retried.
type ConfigError struct {
	Subject string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error (%s): %v", e.Subject, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
