// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package invocation

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/jllopis/skillbind/pkg/skills"
)

// DefaultResultKey derives a result key from the skill's short name, e.g.
// move_to_result. The same skill always yields the same key.
func DefaultResultKey(s *skills.Skill) string {
	return SnakeCase(s.ShortName()) + "_result"
}

// UniqueResultKey derives a result key from the skill's short name and a
// random suffix, e.g. move_to_1f0c9a2e. Use it with WithResultKeyFunc when
// several calls to one skill share a blackboard.
func UniqueResultKey(s *skills.Skill) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return SnakeCase(s.ShortName()) + "_" + id[:8]
}

// SnakeCase lowercases name and separates words with underscores.
func SnakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '-' || r == ' ' || r == '.' || r == '/':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
		case unicode.IsUpper(r):
			if i > 0 && b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
