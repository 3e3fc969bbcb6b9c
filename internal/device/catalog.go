package device

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Xatter/shellies-ng/internal/rpc"
)

// ModelInfo describes a model designation, or a family of them when
// registered as a prefix.
type ModelInfo struct {
	Model string
	Name  string
	Gen   int
}

// Factory builds a device for a recognized model.
type Factory func(ids Identifiers, info ModelInfo, h rpc.Handler) (Device, error)

type entry struct {
	info    ModelInfo
	factory Factory
}

// Catalog maps model designations to device factories. Lookup tries an exact
// match first, then the longest registered prefix.
type Catalog struct {
	mu       sync.RWMutex
	exact    map[string]entry
	prefixes map[string]entry
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		exact:    make(map[string]entry),
		prefixes: make(map[string]entry),
	}
}

// Register adds a model. A nil factory builds a generic Shelly.
func (c *Catalog) Register(info ModelInfo, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exact[strings.ToUpper(info.Model)] = entry{info: info, factory: f}
}

// RegisterPrefix adds a family of models sharing a designation prefix.
func (c *Catalog) RegisterPrefix(info ModelInfo, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefixes[strings.ToUpper(info.Model)] = entry{info: info, factory: f}
}

// Lookup returns the catalog entry for model.
func (c *Catalog) Lookup(model string) (ModelInfo, bool) {
	e, ok := c.lookup(model)
	return e.info, ok
}

func (c *Catalog) lookup(model string) (entry, bool) {
	if model == "" {
		return entry{}, false
	}
	key := strings.ToUpper(model)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.exact[key]; ok {
		return e, true
	}

	var best entry
	bestLen := 0
	for prefix, e := range c.prefixes {
		if len(prefix) > bestLen && strings.HasPrefix(key, prefix) {
			best, bestLen = e, len(prefix)
		}
	}
	return best, bestLen > 0
}

// Recognizes implements Constructor.
func (c *Catalog) Recognizes(model string) bool {
	_, ok := c.lookup(model)
	return ok
}

// Construct implements Constructor.
func (c *Catalog) Construct(ids Identifiers, h rpc.Handler) (Device, error) {
	e, ok := c.lookup(ids.Model)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedModel, ids.Model)
	}
	if e.factory == nil {
		return NewShelly(ids, e.info, h), nil
	}
	return e.factory(ids, e.info, h)
}

// DefaultCatalog returns a catalog of Gen2 and Gen3 devices, all built as
// generic Shelly devices.
func DefaultCatalog() *Catalog {
	c := NewCatalog()

	for _, m := range []ModelInfo{
		{"SNSW-001X16EU", "Shelly Plus 1", 2},
		{"SNSW-001X8EU", "Shelly Plus 1 Mini", 2},
		{"SNSW-001P16EU", "Shelly Plus 1PM", 2},
		{"SNSW-001P8EU", "Shelly Plus 1PM Mini", 2},
		{"SNSW-002P16EU", "Shelly Plus 2PM", 2},
		{"SNSW-102P16EU", "Shelly Plus 2PM", 2},
		{"SNPL-00112EU", "Shelly Plus Plug S", 2},
		{"SNPL-00116US", "Shelly Plus Plug US", 2},
		{"SNSN-0024X", "Shelly Plus I4", 2},
		{"SNSN-0013A", "Shelly Plus H&T", 2},
		{"SNDM-0013US", "Shelly Plus Wall Dimmer", 2},
		{"SPSW-001XE16EU", "Shelly Pro 1", 2},
		{"SPSW-201XE16EU", "Shelly Pro 1", 2},
		{"SPSW-001PE16EU", "Shelly Pro 1PM", 2},
		{"SPSW-201PE16EU", "Shelly Pro 1PM", 2},
		{"SPSW-002XE16EU", "Shelly Pro 2", 2},
		{"SPSW-002PE16EU", "Shelly Pro 2PM", 2},
		{"SPSW-004PE16EU", "Shelly Pro 4PM", 2},
		{"SPEM-003CEBEU", "Shelly Pro 3EM", 2},
		{"S3SW-001X16EU", "Shelly 1 Gen3", 3},
		{"S3SW-001P16EU", "Shelly 1PM Gen3", 3},
	} {
		c.Register(m, nil)
	}

	for _, m := range []ModelInfo{
		{"SNSW-", "Shelly Plus switch", 2},
		{"SNPL-", "Shelly Plus plug", 2},
		{"SPSW-", "Shelly Pro switch", 2},
		{"S3SW-", "Shelly Gen3 switch", 3},
	} {
		c.RegisterPrefix(m, nil)
	}

	return c
}
