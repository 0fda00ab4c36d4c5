package model

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Load reads and validates a single model document. The organism id defaults
// to the file basename (without extension) when the document omits one,
// matching how model files are usually named after their organism.
func Load(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model %s: %w", path, err)
	}
	var m Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing model %s: %w", path, err)
	}
	if m.ID == "" {
		m.ID = idFromPath(path)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validating model %s: %w", path, err)
	}
	return &m, nil
}

func idFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Cache loads each model file once and serves it to every community that
// includes the organism. Models are immutable, so sharing is safe.
type Cache struct {
	models map[string]*Model
	order  []string
}

// NewCache expands the given paths or glob patterns, loads every matching
// model and indexes it by organism id.
func NewCache(patterns []string) (*Cache, error) {
	var paths []string
	for _, pattern := range patterns {
		if strings.ContainsAny(pattern, "*?[") {
			matches, err := filepath.Glob(pattern)
			if err != nil {
				return nil, fmt.Errorf("bad model pattern %q: %w", pattern, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("no files match model pattern %q", pattern)
			}
			sort.Strings(matches)
			paths = append(paths, matches...)
		} else {
			paths = append(paths, pattern)
		}
	}

	c := &Cache{models: make(map[string]*Model, len(paths))}
	for _, path := range paths {
		m, err := Load(path)
		if err != nil {
			return nil, err
		}
		if _, dup := c.models[m.ID]; dup {
			return nil, fmt.Errorf("duplicate organism id %q (file %s)", m.ID, path)
		}
		c.models[m.ID] = m
		c.order = append(c.order, m.ID)
	}
	return c, nil
}

// IDs returns the loaded organism ids in load order.
func (c *Cache) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Get returns the model for an organism id.
func (c *Cache) Get(id string) (*Model, error) {
	m, ok := c.models[id]
	if !ok {
		return nil, fmt.Errorf("organism %q not loaded", id)
	}
	return m, nil
}
