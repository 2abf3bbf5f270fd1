package skills

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jllopis/skillbind/pkg/errors"
	"github.com/jllopis/skillbind/pkg/schema"
)

const moveSkill = `---
name: move-to
description: Moves the arm to a target pose.
id: skills.move.MoveTo
package: skills.move
parameters: MoveParams
enums:
  - name: Mode
    values: [MODE_UNSPECIFIED, MODE_FAST, MODE_SAFE]
messages:
  - name: Pose
    fields:
      - {name: x, type: double}
      - {name: y, type: double}
  - name: MoveParams
    fields:
      - {name: speed, type: double}
      - {name: target, type: Pose}
      - {name: mode, type: Mode}
      - {name: arm, type: string}
defaults:
  speed: 0.5
  mode: MODE_SAFE
resources:
  arm: [manipulator]
  camera: [vision]
result_key: move_result
---

Moves the arm at the given speed.
`

func writeSkill(t *testing.T, root, name, content string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeSkill(t, t.TempDir(), "move-to", moveSkill)

	skill, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if skill.ID != "skills.move.MoveTo" || skill.ShortName() != "MoveTo" {
		t.Fatalf("unexpected id %s (%s)", skill.ID, skill.ShortName())
	}
	if skill.Parameters.Name() != "skills.move.MoveParams" {
		t.Fatalf("unexpected parameters %s", skill.Parameters.Name())
	}
	if skill.ResultKey != "move_result" || skill.Body != "Moves the arm at the given speed." {
		t.Fatalf("unexpected result key %q or body %q", skill.ResultKey, skill.Body)
	}
	if !reflect.DeepEqual(skill.ResourceSlots["arm"], []string{"manipulator"}) {
		t.Fatalf("unexpected slots %v", skill.ResourceSlots)
	}

	d := skill.Defaults.ProtoReflect()
	fields := d.Descriptor().Fields()
	if got := d.Get(fields.ByName("speed")).Float(); got != 0.5 {
		t.Errorf("expected default speed 0.5, got %v", got)
	}
	if got := d.Get(fields.ByName("mode")).Enum(); got != protoreflect.EnumNumber(2) {
		t.Errorf("expected default mode MODE_SAFE, got %v", got)
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		dir     string
		content string
	}{
		{"no frontmatter", "a", "just text"},
		{"dir mismatch", "other", "---\nname: a\ndescription: d\nmessages: [{name: P, fields: [{name: x, type: int32}]}]\n---\n"},
		{"no description", "a", "---\nname: a\nmessages: [{name: P, fields: [{name: x, type: int32}]}]\n---\n"},
		{"no messages", "a", "---\nname: a\ndescription: d\n---\n"},
		{"unknown type", "a", "---\nname: a\ndescription: d\nmessages: [{name: P, fields: [{name: x, type: Nope}]}]\n---\n"},
		{"bad defaults", "a", "---\nname: a\ndescription: d\nmessages: [{name: P, fields: [{name: x, type: int32}]}]\ndefaults: {y: 1}\n---\n"},
		{"ambiguous parameters", "a", "---\nname: a\ndescription: d\nmessages: [{name: P, fields: []}, {name: Q, fields: []}]\n---\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSkill(t, t.TempDir(), tt.dir, tt.content)
			_, err := LoadFile(path)
			if !errors.HasCode(err, errors.CodeInvalidInput) {
				t.Fatalf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

func TestLoadFileSlotConflict(t *testing.T) {
	content := "---\nname: grab\ndescription: d\nmessages:\n  - name: P\n    fields:\n      - {name: arm, type: string}\n      - {name: arm_resource, type: string}\nresources:\n  arm: [manipulator]\n---\n"
	path := writeSkill(t, t.TempDir(), "grab", content)
	_, err := LoadFile(path)
	if !errors.HasCode(err, errors.CodeResourceSlotNameConflict) {
		t.Fatalf("expected RESOURCE_SLOT_NAME_CONFLICT, got %v", err)
	}
}

func TestSlotNames(t *testing.T) {
	params, err := schema.CompileMessage(schema.FileDef{
		Package: "p",
		Messages: []schema.MessageDef{{Name: "M", Fields: []schema.FieldDef{
			{Name: "arm", Type: "string"},
			{Name: "tool", Type: "string"},
			{Name: "tool_slot", Type: "string"},
		}}},
	}, "M")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	names, err := SlotNames(params, []string{"arm", "camera"}, "")
	if err != nil {
		t.Fatalf("slot names: %v", err)
	}
	expected := map[string]string{"arm": "arm_resource", "camera": "camera"}
	if !reflect.DeepEqual(names, expected) {
		t.Fatalf("expected %v, got %v", expected, names)
	}

	if _, err := SlotNames(params, []string{"tool"}, "_slot"); !errors.HasCode(err, errors.CodeResourceSlotNameConflict) {
		t.Fatalf("expected conflict with the suffixed name, got %v", err)
	}
	if _, err := SlotNames(params, []string{"arm", "arm_resource"}, ""); !errors.HasCode(err, errors.CodeResourceSlotNameConflict) {
		t.Fatalf("expected conflict between slots, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	params, err := schema.CompileMessage(schema.FileDef{
		Package:  "p",
		Messages: []schema.MessageDef{{Name: "M"}, {Name: "N"}},
	}, "M")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	other, err := schema.CompileMessage(schema.FileDef{
		Package:  "p",
		Messages: []schema.MessageDef{{Name: "M"}, {Name: "N"}},
	}, "N")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	tests := []struct {
		name  string
		skill Skill
	}{
		{"missing id", Skill{Parameters: params}},
		{"missing parameters", Skill{ID: "p.M"}},
		{"defaults of another type", Skill{ID: "p.M", Parameters: params, Defaults: other.New().Interface()}},
		{"empty capability", Skill{ID: "p.M", Parameters: params, ResourceSlots: map[string][]string{"arm": {""}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.skill.Validate(""); !errors.HasCode(err, errors.CodeInvalidInput) {
				t.Fatalf("expected INVALID_INPUT, got %v", err)
			}
		})
	}

	ok := Skill{ID: "p.M", Parameters: params, Defaults: params.New().Interface()}
	if err := ok.Validate(""); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestShortName(t *testing.T) {
	tests := map[string]string{
		"skills.move.MoveTo": "MoveTo",
		"/pkg.Service/Call":  "Call",
		"plain":              "plain",
	}
	for id, expected := range tests {
		s := Skill{ID: id}
		if got := s.ShortName(); got != expected {
			t.Errorf("%s: expected %q, got %q", id, expected, got)
		}
	}
	if got := (&Skill{ID: "pkg.", Name: "fallback"}).ShortName(); got != "fallback" {
		t.Errorf("expected name fallback, got %q", got)
	}
}

func TestCatalog(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "move-to", moveSkill)
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := NewCatalog([]string{root})
	if err := c.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx := context.Background()
	ids, err := c.ListSkills(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"skills.move.MoveTo"}) {
		t.Fatalf("unexpected ids %v", ids)
	}
	if _, err := c.FetchSkill(ctx, "skills.move.MoveTo"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := c.FetchSkill(ctx, "missing"); !errors.HasCode(err, errors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := c.FetchSkill(cancelled, "skills.move.MoveTo"); !errors.HasCode(err, errors.CodeContextLost) {
		t.Fatalf("expected CONTEXT_LOST, got %v", err)
	}

	if len(c.Files()) != 1 {
		t.Fatalf("expected one watched file, got %v", c.Files())
	}
}

func TestCatalogDuplicateIDs(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	writeSkill(t, a, "move-to", moveSkill)
	writeSkill(t, b, "move-to", moveSkill)

	c := NewCatalog([]string{a, b})
	if err := c.Load(); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestLoadResources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resources.yaml")
	content := `resources:
  - name: right_arm
    capabilities: [manipulator, gripper]
  - name: left_arm
    capabilities: [manipulator]
  - name: head_cam
    capabilities: [vision]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dir, err := LoadResources(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(dir) != 3 {
		t.Fatalf("expected 3 handles, got %d", len(dir))
	}
	if h, ok := dir.Lookup("head_cam"); !ok || !h.Provides([]string{"vision"}) {
		t.Fatalf("expected head_cam with vision")
	}
	matches := dir.Matching([]string{"manipulator"})
	if len(matches) != 2 || matches[0].Name != "left_arm" {
		t.Fatalf("unexpected matches %v", matches)
	}
	if got := dir.Matching([]string{"manipulator", "gripper"}); len(got) != 1 || got[0].Name != "right_arm" {
		t.Fatalf("unexpected matches %v", got)
	}
}

func TestLoadResourcesErrors(t *testing.T) {
	if _, err := LoadResources(filepath.Join(t.TempDir(), "missing.yaml")); !errors.HasCode(err, errors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	path := filepath.Join(t.TempDir(), "dup.yaml")
	content := "resources:\n  - name: a\n  - name: a\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadResources(path); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}
