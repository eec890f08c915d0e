// Package tables holds the static inventory of scraper metadata tables.
//
// The target list is configuration, not discovery: the set of tables a wipe
// may touch is fixed at build time and only the deployment environment
// suffix varies. The cache index table is named here precisely so the rest
// of the tool can refuse to open it for write.
package tables

import (
	"fmt"

	customerrors "github.com/kingsroom/scrapemeta/pkg/errors"
)

// Base names of the metadata tables subject to bulk operations, children
// first. Discovered URLs and inferred structures are leaves; attempts
// reference jobs; jobs reference the singleton scraper state.
var defaultTargets = []string{
	"DiscoveredUrl",
	"InferredPageStructure",
	"ScrapeAttempt",
	"ScrapeJob",
	"ScraperState",
}

// CacheIndexBase is the base name of the preserved cache index table. One
// row per cached HTML blob; wiping it would force a full upstream re-fetch.
const CacheIndexBase = "UrlContentCache"

// Inventory is the immutable per-run table configuration.
type Inventory struct {
	env        string
	targets    []string
	cacheIndex string
}

// NewInventory builds the inventory for a deployment environment tag
// (for example "dev" or "prod").
func NewInventory(env string) (*Inventory, error) {
	return NewCustomInventory(env, defaultTargets, CacheIndexBase)
}

// NewCustomInventory builds an inventory from an explicit target list.
// The cache index must not appear among the targets and target names must
// be unique.
func NewCustomInventory(env string, targets []string, cacheIndex string) (*Inventory, error) {
	if env == "" {
		return nil, fmt.Errorf("%w: empty environment tag", customerrors.ErrInvalidInventory)
	}
	if cacheIndex == "" {
		return nil, fmt.Errorf("%w: empty cache index name", customerrors.ErrInvalidInventory)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: empty target list", customerrors.ErrInvalidInventory)
	}

	seen := make(map[string]struct{}, len(targets))
	suffixed := make([]string, 0, len(targets))
	for _, base := range targets {
		if base == cacheIndex {
			return nil, fmt.Errorf("%w: %s", customerrors.ErrCacheTableTargeted, base)
		}
		if _, dup := seen[base]; dup {
			return nil, fmt.Errorf("%w: duplicate target %s", customerrors.ErrInvalidInventory, base)
		}
		seen[base] = struct{}{}
		suffixed = append(suffixed, qualify(base, env))
	}

	return &Inventory{
		env:        env,
		targets:    suffixed,
		cacheIndex: qualify(cacheIndex, env),
	}, nil
}

// Env returns the deployment environment tag.
func (inv *Inventory) Env() string {
	return inv.env
}

// Targets returns the fully qualified target table names in wipe order.
// The returned slice is a copy.
func (inv *Inventory) Targets() []string {
	out := make([]string, len(inv.targets))
	copy(out, inv.targets)
	return out
}

// CacheIndex returns the fully qualified name of the preserved table.
func (inv *Inventory) CacheIndex() string {
	return inv.cacheIndex
}

// Preserved reports whether the named table is exempt from deletion.
func (inv *Inventory) Preserved(table string) bool {
	return table == inv.cacheIndex
}

// IsTarget reports whether the named table is subject to the wipe.
func (inv *Inventory) IsTarget(table string) bool {
	for _, t := range inv.targets {
		if t == table {
			return true
		}
	}
	return false
}

func qualify(base, env string) string {
	return fmt.Sprintf("%s-%s", base, env)
}
