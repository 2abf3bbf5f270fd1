// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package connectors

import (
	"context"
	"net"
	"reflect"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	grpcreflection "google.golang.org/grpc/reflection"
	"google.golang.org/grpc/test/bufconn"

	"github.com/jllopis/skillbind/pkg/bind"
	"github.com/jllopis/skillbind/pkg/errors"
	"github.com/jllopis/skillbind/pkg/invocation"
)

// startServer serves the health service over an in-memory listener.
func startServer(t *testing.T, withReflection bool) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, health.NewServer())
	if withReflection {
		grpcreflection.Register(srv)
	}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestReflectionSourceListSkills(t *testing.T) {
	src, err := NewReflectionSource("bufnet", WithConn(startServer(t, true)))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	ids, err := src.ListSkills(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	found := false
	for _, id := range ids {
		switch id {
		case "grpc.health.v1.Health.Check":
			found = true
		case "grpc.health.v1.Health.Watch":
			t.Errorf("streaming method %s must not be offered", id)
		}
	}
	if !found {
		t.Fatalf("expected grpc.health.v1.Health.Check in %v", ids)
	}
}

func TestReflectionSourceFetchSkill(t *testing.T) {
	src, err := NewReflectionSource("bufnet", WithConn(startServer(t, true)))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	ctx := context.Background()

	for _, id := range []string{"grpc.health.v1.Health.Check", "/grpc.health.v1.Health/Check"} {
		s, err := src.FetchSkill(ctx, id)
		if err != nil {
			t.Fatalf("fetch %s: %v", id, err)
		}
		if s.ID != "grpc.health.v1.Health.Check" || s.Path != "/grpc.health.v1.Health/Check" {
			t.Fatalf("unexpected skill %s at %s", s.ID, s.Path)
		}
		if s.Parameters.Name() != "grpc.health.v1.HealthCheckRequest" {
			t.Fatalf("unexpected parameters %s", s.Parameters.Name())
		}
	}

	if _, err := src.FetchSkill(ctx, "grpc.health.v1.Health.Watch"); !errors.HasCode(err, errors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for a streaming method, got %v", err)
	}
}

func TestReflectedSkillAssembles(t *testing.T) {
	src, err := NewReflectionSource("bufnet", WithConn(startServer(t, true)))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	s, err := src.FetchSkill(context.Background(), "grpc.health.v1.Health.Check")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	inv, err := invocation.New().AssembleSkill(s, invocation.Request{
		Args: bind.Args{"service": bind.BlackboardPath("world.service")},
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	expected := []bind.Assignment{{Path: "service", Expression: "world.service"}}
	if !reflect.DeepEqual(inv.Assignments, expected) {
		t.Fatalf("expected %v, got %v", expected, inv.Assignments)
	}
	if inv.ResultKey == "" {
		t.Fatal("expected a generated result key")
	}
}

func TestReflectionNotEnabled(t *testing.T) {
	src, err := NewReflectionSource("bufnet", WithConn(startServer(t, false)))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if _, err := src.ListSkills(context.Background()); !errors.HasCode(err, errors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestNormalizeID(t *testing.T) {
	tests := map[string]string{
		"/pkg.Service/Method": "pkg.Service.Method",
		"pkg.Service.Method":  "pkg.Service.Method",
	}
	for in, expected := range tests {
		if got := normalizeID(in); got != expected {
			t.Errorf("normalizeID(%q) = %q, expected %q", in, got, expected)
		}
	}
}
