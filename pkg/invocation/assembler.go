// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package invocation

import (
	"context"
	"log/slog"
	"sort"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jllopis/skillbind/pkg/bind"
	"github.com/jllopis/skillbind/pkg/errors"
	"github.com/jllopis/skillbind/pkg/schema"
	"github.com/jllopis/skillbind/pkg/skills"
	"github.com/jllopis/skillbind/pkg/telemetry"
)

// Assembler turns skills and requests into invocations. It holds no
// per-call state and may be shared.
type Assembler struct {
	logger    *slog.Logger
	metrics   *telemetry.BindMetrics
	suffix    string
	directory skills.Directory
	resultKey func(*skills.Skill) string
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger for the assembler.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics records assembled invocations and failures.
func WithMetrics(m *telemetry.BindMetrics) Option {
	return func(a *Assembler) {
		a.metrics = m
	}
}

// WithResourceSuffix sets the suffix appended to slot names that collide
// with parameter fields.
func WithResourceSuffix(suffix string) Option {
	return func(a *Assembler) {
		if suffix != "" {
			a.suffix = suffix
		}
	}
}

// WithResourceDirectory lets the assembler fill slots the request leaves
// empty with the only directory handle providing the slot's capabilities.
func WithResourceDirectory(dir skills.Directory) Option {
	return func(a *Assembler) {
		a.directory = dir
	}
}

// WithResultKeyFunc replaces the generator of result keys for skills that
// declare none.
func WithResultKeyFunc(fn func(*skills.Skill) string) Option {
	return func(a *Assembler) {
		if fn != nil {
			a.resultKey = fn
		}
	}
}

// New creates an Assembler.
func New(opts ...Option) *Assembler {
	a := &Assembler{
		logger:    slog.Default(),
		suffix:    skills.DefaultSlotSuffix,
		resultKey: DefaultResultKey,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AssembleSkill builds the invocation of s for req. Any failure aborts the
// call; no partial invocation is returned.
func (a *Assembler) AssembleSkill(s *skills.Skill, req Request) (*Invocation, error) {
	inv, err := a.assemble(s, req)
	ctx := context.Background()
	if err != nil {
		a.metrics.RecordError(ctx, err, "invocation")
		var id string
		if s != nil {
			id = s.ID
		}
		a.logger.Debug("invocation rejected", "skill", id, "error", err)
		return nil, err
	}
	a.metrics.RecordInvocation(ctx, inv.SkillID, len(inv.Assignments))
	a.logger.Debug("invocation assembled",
		"skill", inv.SkillID,
		"assignments", len(inv.Assignments),
		"resources", len(inv.Resources),
		"result_key", inv.ResultKey,
	)
	return inv, nil
}

func (a *Assembler) assemble(s *skills.Skill, req Request) (*Invocation, error) {
	if s == nil || s.Parameters == nil {
		return nil, errors.Newf(errors.CodeInvalidInput, "skill has no parameter schema")
	}
	params := s.Parameters

	dst, err := baseMessage(params, s.Defaults)
	if err != nil {
		return nil, err
	}
	res, err := bind.NewBuilder(params, req.Args).BindInto(dst)
	if err != nil {
		return nil, err
	}
	if err := checkRequired(params, dst, res.Consumed); err != nil {
		return nil, err
	}
	resources, err := a.resolveResources(params, s.ResourceSlots, req.Resources)
	if err != nil {
		return nil, err
	}

	key := req.ResultKey
	if key == "" {
		key = s.ResultKey
	}
	if key == "" {
		key = a.resultKey(s)
	}
	return &Invocation{
		SkillID:     s.ID,
		Parameters:  dst.Interface(),
		Resources:   resources,
		Assignments: res.Assignments,
		ResultKey:   key,
	}, nil
}

// baseMessage deep-copies defaults into a message of the parameter type.
func baseMessage(params *schema.Message, defaults proto.Message) (protoreflect.Message, error) {
	if defaults == nil {
		return params.New(), nil
	}
	src := defaults.ProtoReflect()
	if src.Descriptor() == params.Descriptor() {
		return proto.Clone(defaults).ProtoReflect(), nil
	}
	if string(src.Descriptor().FullName()) != params.Name() {
		return nil, errors.Newf(errors.CodeTypeMismatch, "defaults are %s, parameters are %s",
			src.Descriptor().FullName(), params.Name()).At(params.Name(), "")
	}
	c, err := bind.Canonicalize(defaults, params)
	if err != nil {
		return nil, err
	}
	return c.ProtoReflect(), nil
}

// checkRequired reports every required field that was neither bound nor
// populated by the defaults.
func checkRequired(params *schema.Message, dst protoreflect.Message, consumed []string) error {
	bound := make(map[string]bool, len(consumed))
	for _, name := range consumed {
		bound[name] = true
	}
	var missing []string
	for _, f := range params.Fields() {
		if !f.Required() || bound[f.Name] || dst.Has(f.Descriptor()) {
			continue
		}
		missing = append(missing, f.Name)
	}
	if len(missing) > 0 {
		return errors.MissingRequiredFields(params.Name(), missing)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
