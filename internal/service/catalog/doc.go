// Package catalog holds the engine's read-mostly policy tables: the static
// CategoryCatalog seeded from configuration and the RuleCatalog of
// administrator-defined conflict rules.
package catalog
