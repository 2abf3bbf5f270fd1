package skills

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"gopkg.in/yaml.v3"

	"github.com/jllopis/skillbind/pkg/errors"
	"github.com/jllopis/skillbind/pkg/schema"
)

// FileName is the name of a skill definition inside its directory.
const FileName = "SKILL.md"

const (
	maxNameLen        = 64
	maxDescriptionLen = 1024
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// LoadDir scans a directory for skill subdirectories holding a SKILL.md.
func LoadDir(root string) ([]*Skill, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.New(errors.CodeNotFound, "read skill directory", err).WithContext("path", root)
	}
	var out []*Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillPath := filepath.Join(root, entry.Name(), FileName)
		if _, err := os.Stat(skillPath); err != nil {
			continue
		}
		skill, err := LoadFile(skillPath)
		if err != nil {
			return nil, err
		}
		out = append(out, skill)
	}
	return out, nil
}

// LoadFile parses a single SKILL.md file: YAML frontmatter declaring the
// skill and its parameter messages, followed by a free-form body.
//
//	---
//	name: move-to
//	description: Moves the arm to a pose.
//	id: skills.move.MoveTo
//	package: skills.move
//	parameters: MoveParams
//	messages:
//	  - name: MoveParams
//	    fields:
//	      - {name: speed, type: double}
//	defaults:
//	  speed: 0.5
//	resources:
//	  arm: [manipulator]
//	---
func LoadFile(path string) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.CodeNotFound, "read skill", err).WithContext("path", path)
	}
	fm, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, invalid(path, err)
	}
	var parsed frontmatter
	if err := yaml.Unmarshal([]byte(fm), &parsed); err != nil {
		return nil, invalid(path, fmt.Errorf("parse frontmatter: %w", err))
	}
	if err := validate(parsed, filepath.Dir(path)); err != nil {
		return nil, invalid(path, err)
	}

	params, err := parsed.schema()
	if err != nil {
		return nil, invalid(path, err)
	}
	defaults, err := decodeDefaults(params, parsed.Defaults)
	if err != nil {
		return nil, invalid(path, err)
	}

	skill := &Skill{
		ID:            parsed.id(),
		Name:          parsed.Name,
		Description:   strings.TrimSpace(parsed.Description),
		Parameters:    params,
		Defaults:      defaults,
		ResourceSlots: parsed.Resources,
		ResultKey:     parsed.ResultKey,
		Body:          strings.TrimSpace(body),
		Path:          path,
	}
	if err := skill.Validate(""); err != nil {
		return nil, errors.AsBindError(err).WithContext("path", path)
	}
	return skill, nil
}

type frontmatter struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	ID          string              `yaml:"id"`
	Package     string              `yaml:"package"`
	Parameters  string              `yaml:"parameters"`
	Messages    []schema.MessageDef `yaml:"messages"`
	Enums       []schema.EnumDef    `yaml:"enums"`
	Defaults    map[string]any      `yaml:"defaults"`
	Resources   map[string][]string `yaml:"resources"`
	ResultKey   string              `yaml:"result_key"`
}

func (f frontmatter) id() string {
	if f.ID != "" {
		return f.ID
	}
	if f.Package != "" {
		return f.Package + "." + f.Name
	}
	return f.Name
}

func (f frontmatter) schema() (*schema.Message, error) {
	name := f.Parameters
	if name == "" {
		if len(f.Messages) != 1 {
			return nil, fmt.Errorf("parameters must name one of %d messages", len(f.Messages))
		}
		name = f.Messages[0].Name
	}
	return schema.CompileMessage(schema.FileDef{
		File:     path.Join(strings.ReplaceAll(f.Package, ".", "/"), strings.ReplaceAll(f.Name, "-", "_")+".proto"),
		Package:  f.Package,
		Messages: f.Messages,
		Enums:    f.Enums,
	}, name)
}

// decodeDefaults reads the defaults object with the protobuf JSON mapping,
// so field names may be proto or JSON names and enums are written by name.
func decodeDefaults(params *schema.Message, values map[string]any) (proto.Message, error) {
	if values == nil {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	msg := params.New().Interface()
	if err := protojson.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("defaults for %s: %w", params.Name(), err)
	}
	return msg, nil
}

func splitFrontmatter(content string) (string, string, error) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return "", "", fmt.Errorf("missing frontmatter")
	}
	parts := strings.SplitN(trimmed, "---", 3)
	if len(parts) < 3 {
		return "", "", fmt.Errorf("invalid frontmatter")
	}
	return strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), nil
}

func validate(f frontmatter, dir string) error {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return fmt.Errorf("name exceeds %d characters", maxNameLen)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("name must match %s", namePattern.String())
	}
	if dirName := filepath.Base(dir); dirName != name {
		return fmt.Errorf("name must match directory name (%s)", dirName)
	}
	desc := strings.TrimSpace(f.Description)
	if desc == "" {
		return fmt.Errorf("description is required")
	}
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", maxDescriptionLen)
	}
	if len(f.Messages) == 0 {
		return fmt.Errorf("at least one parameter message is required")
	}
	return nil
}

func invalid(path string, err error) error {
	return errors.New(errors.CodeInvalidInput, "load "+path, err).WithContext("path", path)
}
