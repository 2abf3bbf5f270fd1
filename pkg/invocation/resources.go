package invocation

import (
	"strings"

	"github.com/jllopis/skillbind/pkg/errors"
	"github.com/jllopis/skillbind/pkg/schema"
	"github.com/jllopis/skillbind/pkg/skills"
)

// resolveResources attaches handles under their effective slot names. A
// skill without declared slots takes whatever the request supplies.
func (a *Assembler) resolveResources(params *schema.Message, slots map[string][]string, supplied map[string]skills.ResourceHandle) (map[string]skills.ResourceHandle, error) {
	if len(slots) == 0 {
		names, err := skills.SlotNames(params, sortedKeys(supplied), a.suffix)
		if err != nil {
			return nil, err
		}
		out := make(map[string]skills.ResourceHandle, len(supplied))
		for slot, h := range supplied {
			out[names[slot]] = a.enrich(h)
		}
		return out, nil
	}

	names, err := skills.SlotNames(params, sortedKeys(slots), a.suffix)
	if err != nil {
		return nil, err
	}
	bySlotName := make(map[string]string, len(names))
	for slot, name := range names {
		bySlotName[name] = slot
	}

	given := make(map[string]skills.ResourceHandle, len(supplied))
	var unknown []string
	for _, key := range sortedKeys(supplied) {
		slot := key
		if _, declared := slots[key]; !declared {
			s, ok := bySlotName[key]
			if !ok {
				unknown = append(unknown, key)
				continue
			}
			slot = s
		}
		if _, dup := given[slot]; dup {
			// Supplied under both its own and its deconflicted name.
			unknown = append(unknown, key)
			continue
		}
		given[slot] = supplied[key]
	}
	if len(unknown) > 0 {
		return nil, errors.UnconsumedArguments(params.Name(), unknown).
			WithContext("reason", "undeclared resource slots")
	}

	out := make(map[string]skills.ResourceHandle, len(slots))
	var missing []string
	for _, slot := range sortedKeys(slots) {
		caps := slots[slot]
		h, ok := given[slot]
		if !ok {
			picked, found, err := a.pick(params, slot, caps)
			if err != nil {
				return nil, err
			}
			if !found {
				missing = append(missing, slot)
				continue
			}
			h = picked
		}
		h = a.enrich(h)
		if !h.Provides(caps) {
			return nil, errors.Newf(errors.CodeTypeMismatch, "resource %q lacks capabilities %s required by slot %q",
				h.Name, strings.Join(caps, ", "), slot).
				At(params.Name(), names[slot]).
				WithContext("capabilities", h.Capabilities)
		}
		out[names[slot]] = h
	}
	if len(missing) > 0 {
		return nil, errors.Newf(errors.CodeMissingRequiredField, "missing resources for slots: %s",
			strings.Join(missing, ", ")).
			At(params.Name(), "").
			WithContext("slots", missing)
	}
	return out, nil
}

// pick selects the directory handle for an unfilled slot.
func (a *Assembler) pick(params *schema.Message, slot string, caps []string) (skills.ResourceHandle, bool, error) {
	if a.directory == nil {
		return skills.ResourceHandle{}, false, nil
	}
	matches := a.directory.Matching(caps)
	switch len(matches) {
	case 0:
		return skills.ResourceHandle{}, false, nil
	case 1:
		return matches[0], true, nil
	}
	names := make([]string, len(matches))
	for i, h := range matches {
		names[i] = h.Name
	}
	return skills.ResourceHandle{}, false, errors.Newf(errors.CodeAmbiguousResourceMatch,
		"slot %q matches resources %s", slot, strings.Join(names, ", ")).
		At(params.Name(), slot).
		WithContext("candidates", names)
}

// enrich fills the capabilities of a handle known only by name from the
// directory.
func (a *Assembler) enrich(h skills.ResourceHandle) skills.ResourceHandle {
	if len(h.Capabilities) > 0 || a.directory == nil {
		return h
	}
	if known, ok := a.directory.Lookup(h.Name); ok {
		return known
	}
	return h
}
