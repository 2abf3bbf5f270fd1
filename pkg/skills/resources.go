// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/skillbind/pkg/errors"
)

// ResourceHandle is an opaque handle to a resource, e.g. a robot arm, with
// the capabilities it offers.
type ResourceHandle struct {
	Name         string   `yaml:"name" json:"name"`
	Capabilities []string `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
}

// Provides reports whether the handle offers every capability in caps.
func (h ResourceHandle) Provides(caps []string) bool {
	for _, c := range caps {
		found := false
		for _, have := range h.Capabilities {
			if have == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Directory is a set of known resource handles.
type Directory []ResourceHandle

// Lookup finds a handle by name.
func (d Directory) Lookup(name string) (ResourceHandle, bool) {
	for _, h := range d {
		if h.Name == name {
			return h, true
		}
	}
	return ResourceHandle{}, false
}

// Matching returns the handles providing every capability in caps, sorted
// by name.
func (d Directory) Matching(caps []string) []ResourceHandle {
	var out []ResourceHandle
	for _, h := range d {
		if h.Provides(caps) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type resourceFile struct {
	Resources []ResourceHandle `yaml:"resources"`
}

// LoadResources reads a resource directory file:
//
//	resources:
//	  - name: left_arm
//	    capabilities: [manipulator, gripper]
func LoadResources(path string) (Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.CodeNotFound, "read resource directory", err).WithContext("path", path)
	}
	var parsed resourceFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "parse resource directory", err).WithContext("path", path)
	}
	seen := make(map[string]bool, len(parsed.Resources))
	for _, h := range parsed.Resources {
		name := strings.TrimSpace(h.Name)
		if name == "" {
			return nil, errors.Newf(errors.CodeInvalidInput, "%s: resource without a name", path)
		}
		if seen[name] {
			return nil, errors.Newf(errors.CodeInvalidInput, "%s: resource %q declared twice", path, name)
		}
		seen[name] = true
	}
	return Directory(parsed.Resources), nil
}
