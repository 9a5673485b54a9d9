package catalog

import (
	"fmt"
	"sort"

	"github.com/ignite/keylock/internal/domain"
)

// CategoryCatalog is the immutable category → policy table. Safe for
// concurrent use.
type CategoryCatalog struct {
	byName map[string]domain.CategoryInfo
	names  []string
}

// NewCategoryCatalog validates and indexes the seed entries.
func NewCategoryCatalog(infos []domain.CategoryInfo) (*CategoryCatalog, error) {
	c := &CategoryCatalog{byName: make(map[string]domain.CategoryInfo, len(infos))}
	for _, info := range infos {
		if err := info.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[info.Category]; dup {
			return nil, fmt.Errorf("category %q seeded twice", info.Category)
		}
		c.byName[info.Category] = info
		c.names = append(c.names, info.Category)
	}
	sort.Strings(c.names)
	return c, nil
}

// Get looks up a category. A miss is a configuration problem for the caller
// to surface, never a default.
func (c *CategoryCatalog) Get(category string) (domain.CategoryInfo, bool) {
	info, ok := c.byName[category]
	return info, ok
}

// MustGet is Get returning a *domain.ConfigError for unknown categories.
func (c *CategoryCatalog) MustGet(category string) (domain.CategoryInfo, error) {
	info, ok := c.byName[category]
	if !ok {
		return domain.CategoryInfo{}, &domain.ConfigError{
			Subject: "category " + category,
			Err:     ErrUnknownCategory,
		}
	}
	return info, nil
}

// Names returns every configured category in sorted order.
func (c *CategoryCatalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}
