package model

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// ModelInfo describes one servable model in the catalog.
type ModelInfo struct {
	Name          string   `yaml:"name"`
	Aliases       []string `yaml:"aliases,omitempty"`
	ContextWindow int      `yaml:"context_window"`
	MaxOutput     int      `yaml:"max_output"`
}

type catalogFile struct {
	Models []ModelInfo `yaml:"models"`
}

// Catalog maps model names and aliases to canonical entries. A catalog
// loaded from a file re-reads it once its TTL expires; concurrent lookups
// that hit a stale catalog collapse into a single reload.
type Catalog struct {
	path string
	ttl  time.Duration

	group singleflight.Group

	mu     sync.RWMutex
	byName map[string]ModelInfo
	names  []string
	loaded time.Time
}

// NewCatalog returns a catalog with the built-in model table and no backing
// file.
func NewCatalog() *Catalog {
	c := &Catalog{}
	// Built-in defaults cannot collide.
	_ = c.install(defaultEntries())
	return c
}

// LoadCatalog reads a model catalog from a YAML file. A ttl of zero disables
// automatic reloads.
func LoadCatalog(path string, ttl time.Duration) (*Catalog, error) {
	c := &Catalog{path: path, ttl: ttl}
	if err := c.reload(); err != nil {
		return nil, err
	}
	return c, nil
}

func defaultEntries() []ModelInfo {
	return []ModelInfo{
		{Name: "gpt-5-mini", Aliases: []string{"mini"}, ContextWindow: 400000, MaxOutput: 128000},
		{Name: "gpt-5", Aliases: []string{"full"}, ContextWindow: 400000, MaxOutput: 128000},
		{Name: "gpt-4o-mini", ContextWindow: 128000, MaxOutput: 16384},
		{Name: "gpt-4.1", ContextWindow: 1000000, MaxOutput: 32768},
	}
}

// Resolve maps a model name or alias to its canonical name. Unknown names
// pass through unchanged so the backend gets to reject them itself.
func (c *Catalog) Resolve(name string) string {
	c.refreshIfStale()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if info, ok := c.byName[name]; ok {
		return info.Name
	}
	return name
}

// Info returns the catalog entry for a model name or alias.
func (c *Catalog) Info(name string) (ModelInfo, bool) {
	c.refreshIfStale()
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.byName[name]
	return info, ok
}

// List returns the canonical entries in name order.
func (c *Catalog) List() []ModelInfo {
	c.refreshIfStale()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ModelInfo, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.byName[name])
	}
	return out
}

// Refresh re-reads the backing file immediately. It is a no-op for catalogs
// without one.
func (c *Catalog) Refresh() error {
	if c.path == "" {
		return nil
	}
	_, err, _ := c.group.Do("reload", func() (interface{}, error) {
		return nil, c.reload()
	})
	return err
}

// MergeLive fetches the account's model IDs and adds the ones the catalog
// does not know yet, as bare entries without aliases or window sizes.
// Concurrent merges collapse into a single upstream call.
func (c *Catalog) MergeLive(l Lister) error {
	if l == nil {
		return fmt.Errorf("catalog: nil lister")
	}
	_, err, _ := c.group.Do("merge_live", func() (interface{}, error) {
		ids, err := l.ListModels()
		if err != nil {
			return nil, fmt.Errorf("list live models: %w", err)
		}

		c.mu.RLock()
		fresh := make([]ModelInfo, 0, len(ids))
		for _, id := range ids {
			if _, known := c.byName[id]; !known && id != "" {
				fresh = append(fresh, ModelInfo{Name: id})
			}
		}
		merged := make([]ModelInfo, 0, len(c.names)+len(fresh))
		for _, name := range c.names {
			merged = append(merged, c.byName[name])
		}
		c.mu.RUnlock()

		if len(fresh) == 0 {
			return nil, nil
		}
		return nil, c.install(append(merged, fresh...))
	})
	return err
}

func (c *Catalog) refreshIfStale() {
	if c.path == "" || c.ttl <= 0 {
		return
	}
	c.mu.RLock()
	stale := time.Since(c.loaded) > c.ttl
	c.mu.RUnlock()
	if !stale {
		return
	}
	// A failed reload keeps the previous table; lookups go on answering.
	_ = c.Refresh()
}

func (c *Catalog) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Models) == 0 {
		return fmt.Errorf("catalog %s defines no models", c.path)
	}
	return c.install(f.Models)
}

func (c *Catalog) install(entries []ModelInfo) error {
	byName := make(map[string]ModelInfo, len(entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return fmt.Errorf("catalog entry with empty name")
		}
		if _, exists := byName[e.Name]; exists {
			return fmt.Errorf("duplicate model name or alias: %s", e.Name)
		}
		byName[e.Name] = e
		names = append(names, e.Name)
		for _, alias := range e.Aliases {
			if _, exists := byName[alias]; exists {
				return fmt.Errorf("duplicate model name or alias: %s", alias)
			}
			byName[alias] = e
		}
	}
	sort.Strings(names)

	c.mu.Lock()
	c.byName = byName
	c.names = names
	c.loaded = time.Now()
	c.mu.Unlock()
	return nil
}
