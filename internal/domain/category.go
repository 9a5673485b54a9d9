package domain

import "fmt"

// CategoryInfo is the immutable per-category policy seeded at startup.
type CategoryInfo struct {
	Category            string `json:"category" yaml:"category"`
	MaxUsagePerDay      int    `json:"max_usage_per_day" yaml:"max_usage_per_day"`
	DefaultCooloffHours int    `json:"default_cooloff_hours" yaml:"default_cooloff_hours"`
}

// Validate checks the seed invariants.
func (c CategoryInfo) Validate() error {
	if c.Category == "" {
		return fmt.Errorf("category name is required")
	}
	if c.MaxUsagePerDay < 1 {
		return fmt.Errorf("category %q: max_usage_per_day must be >= 1", c.Category)
	}
	if c.DefaultCooloffHours < 0 {
		return fmt.Errorf("category %q: default_cooloff_hours must be >= 0", c.Category)
	}
	return nil
}
