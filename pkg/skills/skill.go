// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package skills describes remote skills: their parameter schema, default
// parameters and resource slots, and loads them from SKILL.md catalogs.
package skills

import (
	"sort"
	"strings"

	"google.golang.org/protobuf/proto"

	"github.com/jllopis/skillbind/pkg/errors"
	"github.com/jllopis/skillbind/pkg/schema"
)

// DefaultSlotSuffix is appended to a resource slot name that collides with a
// parameter field.
const DefaultSlotSuffix = "_resource"

// Skill is everything needed to assemble a call to one skill.
type Skill struct {
	// ID identifies the skill to the executor, e.g. skills.move.MoveTo.
	ID          string
	Name        string
	Description string
	Parameters  *schema.Message
	// Defaults is the base parameter payload. It may be nil.
	Defaults proto.Message
	// ResourceSlots maps slot names to the capabilities a handle must have.
	ResourceSlots map[string][]string
	// ResultKey is the default result-binding key. It may be empty.
	ResultKey string
	Body      string
	Path      string
}

// ShortName is the last component of the skill id, or its name when the id
// has none.
func (s *Skill) ShortName() string {
	id := s.ID
	if i := strings.LastIndexAny(id, "./"); i >= 0 {
		id = id[i+1:]
	}
	if id == "" {
		id = s.Name
	}
	return id
}

// SlotNames maps each declared resource slot to the name it is attached
// under. Slots whose name is a parameter field get suffix appended; if the
// suffixed name is taken too the skill cannot be called.
func (s *Skill) SlotNames(suffix string) (map[string]string, error) {
	return SlotNames(s.Parameters, s.slotList(), suffix)
}

func (s *Skill) slotList() []string {
	slots := make([]string, 0, len(s.ResourceSlots))
	for slot := range s.ResourceSlots {
		slots = append(slots, slot)
	}
	return slots
}

// SlotNames deconflicts resource slot names against the fields of params.
// Slots are processed in sorted order.
func SlotNames(params *schema.Message, slots []string, suffix string) (map[string]string, error) {
	if suffix == "" {
		suffix = DefaultSlotSuffix
	}
	sorted := append([]string(nil), slots...)
	sort.Strings(sorted)

	taken := make(map[string]string)
	out := make(map[string]string, len(sorted))
	for _, slot := range sorted {
		name := slot
		if params != nil {
			if _, isField := params.Field(name); isField {
				name = slot + suffix
				if _, isField := params.Field(name); isField {
					return nil, errors.Newf(errors.CodeResourceSlotNameConflict,
						"resource slot %q collides with fields %q and %q", slot, slot, name).
						At(params.Name(), slot)
				}
			}
		}
		if prev, dup := taken[name]; dup {
			e := errors.Newf(errors.CodeResourceSlotNameConflict,
				"resource slots %q and %q both attach as %q", prev, slot, name)
			if params != nil {
				e = e.At(params.Name(), slot)
			}
			return nil, e
		}
		taken[name] = slot
		out[slot] = name
	}
	return out, nil
}

// Validate checks that the skill can be called.
func (s *Skill) Validate(suffix string) error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.Newf(errors.CodeInvalidInput, "skill id is required")
	}
	if s.Parameters == nil {
		return errors.Newf(errors.CodeInvalidInput, "skill %s has no parameter schema", s.ID)
	}
	if s.Defaults != nil {
		got := s.Defaults.ProtoReflect().Descriptor().FullName()
		if string(got) != s.Parameters.Name() {
			return errors.Newf(errors.CodeInvalidInput, "skill %s: defaults are %s, parameters are %s",
				s.ID, got, s.Parameters.Name())
		}
	}
	for slot, caps := range s.ResourceSlots {
		if strings.TrimSpace(slot) == "" {
			return errors.Newf(errors.CodeInvalidInput, "skill %s: empty resource slot name", s.ID)
		}
		for _, c := range caps {
			if strings.TrimSpace(c) == "" {
				return errors.Newf(errors.CodeInvalidInput, "skill %s: slot %q has an empty capability", s.ID, slot)
			}
		}
	}
	_, err := s.SlotNames(suffix)
	return err
}
