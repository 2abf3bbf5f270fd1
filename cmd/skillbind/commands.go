// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"google.golang.org/protobuf/encoding/protojson"

	"github.com/jllopis/skillbind/pkg/invocation"
	"github.com/jllopis/skillbind/pkg/schema"
	"github.com/jllopis/skillbind/pkg/skills"
	"github.com/jllopis/skillbind/pkg/telemetry"
)

type skillRow struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Parameters  string `json:"parameters"`
}

type fieldRow struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Repeated bool   `json:"repeated,omitempty"`
	Required bool   `json:"required"`
	Oneof    string `json:"oneof,omitempty"`
}

type slotRow struct {
	Slot         string   `json:"slot"`
	AttachedAs   string   `json:"attached_as"`
	Capabilities []string `json:"capabilities,omitempty"`
}

type describeResult struct {
	ID          string          `json:"id"`
	Description string          `json:"description,omitempty"`
	Parameters  string          `json:"parameters"`
	Fields      []fieldRow      `json:"fields"`
	Slots       []slotRow       `json:"slots,omitempty"`
	Defaults    json.RawMessage `json:"defaults,omitempty"`
	ResultKey   string          `json:"result_key,omitempty"`
}

type resourceRow struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities,omitempty"`
}

type invocationResult struct {
	SkillID     string                 `json:"skill_id"`
	Parameters  json.RawMessage        `json:"parameters"`
	Resources   map[string]resourceRow `json:"resources,omitempty"`
	Assignments []assignmentRow        `json:"assignments"`
	ResultKey   string                 `json:"result_key"`
}

type assignmentRow struct {
	Path       string `json:"path"`
	Expression string `json:"expression"`
}

func (a *app) runSkills(ctx context.Context, flags globalFlags, args []string) error {
	if len(args) > 0 {
		return NewInvalidArgumentError(strings.Join(args, " "), "skills takes no arguments")
	}
	ids, err := a.registry.List(ctx)
	if err != nil {
		return err
	}

	rows := make([]skillRow, 0, len(ids))
	for _, id := range ids {
		s, err := a.registry.Fetch(ctx, id)
		if err != nil {
			return err
		}
		rows = append(rows, skillRow{ID: s.ID, Description: s.Description, Parameters: s.Parameters.Name()})
	}

	if flags.JSON {
		return writeJSON(a.out, rows)
	}
	writer := newTabWriter(a.out)
	writeRow(writer, "SKILL", "PARAMETERS", "DESCRIPTION")
	for _, row := range rows {
		writeRow(writer, row.ID, row.Parameters, row.Description)
	}
	return writer.Flush()
}

func (a *app) runDescribe(ctx context.Context, flags globalFlags, args []string) error {
	if len(args) != 1 {
		return NewInvalidArgumentError(strings.Join(args, " "), "usage: skillbind describe <skill>")
	}
	s, err := a.registry.Fetch(ctx, args[0])
	if err != nil {
		return err
	}
	result, err := a.describe(s)
	if err != nil {
		return err
	}

	if flags.JSON {
		return writeJSON(a.out, result)
	}
	fmt.Fprintf(a.out, "Skill:      %s\n", result.ID)
	if result.Description != "" {
		fmt.Fprintf(a.out, "About:      %s\n", result.Description)
	}
	fmt.Fprintf(a.out, "Parameters: %s\n", result.Parameters)
	if result.ResultKey != "" {
		fmt.Fprintf(a.out, "Result key: %s\n", result.ResultKey)
	}
	fmt.Fprintln(a.out)

	writer := newTabWriter(a.out)
	writeRow(writer, "FIELD", "TYPE", "REQUIRED", "ONEOF")
	for _, f := range result.Fields {
		typ := f.Type
		if f.Repeated {
			typ = "repeated " + typ
		}
		writeRow(writer, f.Name, typ, fmt.Sprint(f.Required), f.Oneof)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	if len(result.Slots) > 0 {
		fmt.Fprintln(a.out)
		writer = newTabWriter(a.out)
		writeRow(writer, "SLOT", "ATTACHED_AS", "CAPABILITIES")
		for _, slot := range result.Slots {
			writeRow(writer, slot.Slot, slot.AttachedAs, strings.Join(slot.Capabilities, ","))
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}
	if len(result.Defaults) > 0 {
		fmt.Fprintf(a.out, "\nDefaults: %s\n", result.Defaults)
	}
	return nil
}

func (a *app) describe(s *skills.Skill) (describeResult, error) {
	result := describeResult{
		ID:          s.ID,
		Description: s.Description,
		Parameters:  s.Parameters.Name(),
		ResultKey:   s.ResultKey,
	}
	for _, f := range s.Parameters.Fields() {
		result.Fields = append(result.Fields, fieldRow{
			Name:     f.Name,
			Type:     f.TypeName(),
			Repeated: f.Kind != schema.KindMap && f.IsRepeated(),
			Required: f.Required(),
			Oneof:    f.OneofGroup,
		})
	}

	names, err := s.SlotNames(a.cfg.Binding.ResourceSuffix)
	if err != nil {
		return result, err
	}
	slots := make([]string, 0, len(names))
	for slot := range names {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	for _, slot := range slots {
		result.Slots = append(result.Slots, slotRow{
			Slot:         slot,
			AttachedAs:   names[slot],
			Capabilities: s.ResourceSlots[slot],
		})
	}

	if s.Defaults != nil {
		payload, err := protojson.Marshal(s.Defaults)
		if err != nil {
			return result, err
		}
		result.Defaults = payload
	}
	return result, nil
}

func (a *app) runAssemble(ctx context.Context, flags globalFlags, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return NewInvalidArgumentError(strings.Join(args, " "), "usage: skillbind assemble <skill> [flags]")
	}
	id := args[0]

	cmd := flag.NewFlagSet("assemble", flag.ContinueOnError)
	cmd.SetOutput(io.Discard)
	var values, refs, exprs, resources multiFlag
	cmd.Var(&values, "arg", "Argument as name=json (repeatable)")
	cmd.Var(&refs, "bb", "Blackboard reference as name=path (repeatable)")
	cmd.Var(&exprs, "expr", "Expression as name=text (repeatable)")
	cmd.Var(&resources, "resource", "Resource as slot=handle (repeatable)")
	resultKey := cmd.String("result-key", "", "Result binding key")
	if err := cmd.Parse(args[1:]); err != nil {
		return NewInvalidArgumentError(strings.Join(args[1:], " "), err.Error())
	}
	if cmd.NArg() > 0 {
		return NewInvalidArgumentError(strings.Join(cmd.Args(), " "), "unexpected arguments")
	}

	callArgs, err := parseCallArgs(values, refs, exprs)
	if err != nil {
		return err
	}
	handles, err := parseResources(resources, a.directory)
	if err != nil {
		return err
	}

	s, err := a.registry.Fetch(ctx, id)
	if err != nil {
		return err
	}
	inv, err := a.assembler.AssembleSkill(s, invocation.Request{
		Args:      callArgs,
		Resources: handles,
		ResultKey: *resultKey,
	})
	if err != nil {
		return err
	}

	result, err := invocationJSON(inv)
	if err != nil {
		return err
	}
	if flags.JSON {
		return writeJSON(a.out, result)
	}

	fmt.Fprintf(a.out, "Skill:      %s\n", result.SkillID)
	fmt.Fprintf(a.out, "Result key: %s\n", result.ResultKey)
	fmt.Fprintf(a.out, "Parameters: %s\n", result.Parameters)
	if len(result.Resources) > 0 {
		fmt.Fprintln(a.out)
		writer := newTabWriter(a.out)
		writeRow(writer, "RESOURCE", "HANDLE", "CAPABILITIES")
		for _, name := range sortedNames(result.Resources) {
			h := result.Resources[name]
			writeRow(writer, name, h.Name, strings.Join(h.Capabilities, ","))
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}
	if len(result.Assignments) > 0 {
		fmt.Fprintln(a.out)
		writer := newTabWriter(a.out)
		writeRow(writer, "PATH", "EXPRESSION")
		for _, as := range result.Assignments {
			writeRow(writer, as.Path, as.Expression)
		}
		return writer.Flush()
	}
	return nil
}

func invocationJSON(inv *invocation.Invocation) (invocationResult, error) {
	payload, err := protojson.MarshalOptions{EmitUnpopulated: true}.Marshal(inv.Parameters)
	if err != nil {
		return invocationResult{}, err
	}
	result := invocationResult{
		SkillID:     inv.SkillID,
		Parameters:  payload,
		Assignments: make([]assignmentRow, 0, len(inv.Assignments)),
		ResultKey:   inv.ResultKey,
	}
	if len(inv.Resources) > 0 {
		result.Resources = make(map[string]resourceRow, len(inv.Resources))
		for name, h := range inv.Resources {
			result.Resources[name] = resourceRow{Name: h.Name, Capabilities: h.Capabilities}
		}
	}
	for _, as := range inv.Assignments {
		result.Assignments = append(result.Assignments, assignmentRow{Path: as.Path, Expression: as.Expression})
	}
	return result, nil
}

func (a *app) runWatch(ctx context.Context, args []string) error {
	if a.catalog == nil {
		return NewInvalidArgumentError(strings.Join(args, " "), "watch needs a skill catalog, not a gRPC source")
	}
	cmd := flag.NewFlagSet("watch", flag.ContinueOnError)
	cmd.SetOutput(io.Discard)
	interval := cmd.Duration("interval", a.cfg.Catalog.WatchInterval(), "Polling interval")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError(strings.Join(args, " "), err.Error())
	}

	watcher := skills.NewWatcher(a.catalog,
		skills.WithWatchInterval(*interval),
		skills.WithWatchLogger(telemetry.Component(a.logger, "watcher")),
	)
	a.registry.OnInvalidate(func(id string) {
		if id == "" {
			fmt.Fprintln(a.out, "registry invalidated")
			return
		}
		fmt.Fprintf(a.out, "invalidated %s\n", id)
	})
	watcher.OnReload(func(c *skills.Catalog) {
		a.registry.InvalidateAll(ctx)
		ids, _ := c.ListSkills(ctx)
		fmt.Fprintf(a.out, "catalog reloaded: %d skills\n", len(ids))
	})

	watcher.Start(ctx)
	defer watcher.Stop()
	fmt.Fprintf(a.out, "watching %s\n", strings.Join(a.cfg.Catalog.Dirs, ", "))
	<-ctx.Done()
	return nil
}

func writeJSON(w io.Writer, value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(payload))
	return err
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	if w == nil {
		w = os.Stdout
	}
	return tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
}

func writeRow(writer *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		cols[i] = normalizeCell(col)
	}
	fmt.Fprintln(writer, strings.Join(cols, "\t"))
}

func normalizeCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return strings.Join(strings.Fields(value), " ")
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}
