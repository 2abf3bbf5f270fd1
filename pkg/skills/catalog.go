// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jllopis/skillbind/pkg/errors"
)

// Catalog serves skills loaded from SKILL.md directories. It is safe for
// concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	dirs   []string
	skills map[string]*Skill
	logger *slog.Logger
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithCatalogLogger sets the logger for the catalog.
func WithCatalogLogger(logger *slog.Logger) CatalogOption {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCatalog returns an empty catalog reading from dirs. Call Load to
// populate it.
func NewCatalog(dirs []string, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		dirs:   append([]string(nil), dirs...),
		skills: make(map[string]*Skill),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads every directory and replaces the catalog contents. On error
// the previous contents are kept.
func (c *Catalog) Load() error {
	loaded := make(map[string]*Skill)
	for _, dir := range c.dirs {
		found, err := LoadDir(dir)
		if err != nil {
			return err
		}
		for _, s := range found {
			if prev, dup := loaded[s.ID]; dup {
				return errors.Newf(errors.CodeInvalidInput, "skill %s defined in %s and %s", s.ID, prev.Path, s.Path)
			}
			loaded[s.ID] = s
		}
	}

	c.mu.Lock()
	c.skills = loaded
	c.mu.Unlock()
	c.logger.Debug("skill catalog loaded", "skills", len(loaded), "dirs", len(c.dirs))
	return nil
}

// Add registers a skill that was not loaded from disk.
func (c *Catalog) Add(s *Skill) error {
	if err := s.Validate(""); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.skills[s.ID]; dup {
		return errors.Newf(errors.CodeInvalidInput, "skill %s already in catalog", s.ID)
	}
	c.skills[s.ID] = s
	return nil
}

// FetchSkill returns the skill with the given id.
func (c *Catalog) FetchSkill(ctx context.Context, id string) (*Skill, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.New(errors.CodeContextLost, "fetch skill", err)
	}
	c.mu.RLock()
	s, ok := c.skills[id]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "skill %s not in catalog", id)
	}
	return s, nil
}

// ListSkills returns the ids of all skills, sorted.
func (c *Catalog) ListSkills(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.New(errors.CodeContextLost, "list skills", err)
	}
	c.mu.RLock()
	ids := make([]string, 0, len(c.skills))
	for id := range c.skills {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// Files returns the SKILL.md files currently present under the catalog
// directories.
func (c *Catalog) Files() []string {
	var out []string
	for _, dir := range c.dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*", FileName))
		if err != nil {
			continue
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out
}
