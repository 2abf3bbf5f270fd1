// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package invocation assembles finished skill calls from a parameter
// schema, default parameters, keyword arguments and resource handles.
package invocation

import (
	"google.golang.org/protobuf/proto"

	"github.com/jllopis/skillbind/pkg/bind"
	"github.com/jllopis/skillbind/pkg/schema"
	"github.com/jllopis/skillbind/pkg/skills"
)

// Invocation is a call ready to hand to an executor. It owns its payload and
// assignment list.
type Invocation struct {
	SkillID string
	// Parameters holds concrete values, with placeholders where Assignments
	// will write at execution time.
	Parameters  proto.Message
	Resources   map[string]skills.ResourceHandle
	Assignments []bind.Assignment
	ResultKey   string
}

// Request carries the per-call inputs for a skill.
type Request struct {
	Args bind.Args
	// Resources maps slot names, or their deconflicted names, to handles.
	Resources map[string]skills.ResourceHandle
	// ResultKey overrides the skill's result-binding key.
	ResultKey string
}

// Assemble builds an invocation for an ad hoc skill whose id is the
// parameter message name. Resources are attached under their keys, renamed
// when they collide with a parameter field.
func Assemble(params *schema.Message, defaults proto.Message, args bind.Args, resources map[string]skills.ResourceHandle) (*Invocation, error) {
	s := &skills.Skill{
		ID:         params.Name(),
		Parameters: params,
		Defaults:   defaults,
	}
	return New().AssembleSkill(s, Request{Args: args, Resources: resources})
}
