// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package connectors exposes remote services as skill sources.
package connectors

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jllopis/skillbind/pkg/errors"
	"github.com/jllopis/skillbind/pkg/schema"
	"github.com/jllopis/skillbind/pkg/skills"
)

// ReflectionSource offers the unary methods of a gRPC server as skills,
// discovered through server reflection. A method's skill id is
// pkg.Service.Method and its parameter schema is the method's input message.
type ReflectionSource struct {
	target string
	conn   *grpc.ClientConn
	owned  bool
	opts   []grpc.DialOption
	logger *slog.Logger

	mu      sync.RWMutex
	methods map[string]protoreflect.MethodDescriptor
	loaded  bool
}

// ReflectionOption configures the ReflectionSource.
type ReflectionOption func(*ReflectionSource)

// WithDialOptions adds custom gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) ReflectionOption {
	return func(s *ReflectionSource) {
		s.opts = append(s.opts, opts...)
	}
}

// WithInsecure uses insecure connection (for development).
func WithInsecure() ReflectionOption {
	return func(s *ReflectionSource) {
		s.opts = append(s.opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
}

// WithConn uses an existing connection. The source does not close it.
func WithConn(conn *grpc.ClientConn) ReflectionOption {
	return func(s *ReflectionSource) {
		s.conn = conn
	}
}

// WithReflectionLogger sets the logger for the source.
func WithReflectionLogger(logger *slog.Logger) ReflectionOption {
	return func(s *ReflectionSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewReflectionSource creates a source for the gRPC server at target. No
// call is made until the first fetch.
func NewReflectionSource(target string, opts ...ReflectionOption) (*ReflectionSource, error) {
	s := &ReflectionSource{
		target:  target,
		logger:  slog.Default(),
		methods: make(map[string]protoreflect.MethodDescriptor),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.conn != nil {
		return s, nil
	}

	// Default to insecure if no transport credentials set
	if len(s.opts) == 0 {
		s.opts = append(s.opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, s.opts...)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "create grpc client", err).WithContext("target", target)
	}
	s.conn = conn
	s.owned = true
	return s, nil
}

// FetchSkill returns the skill for a unary method. Both pkg.Service.Method
// and /pkg.Service/Method are accepted.
func (s *ReflectionSource) FetchSkill(ctx context.Context, id string) (*skills.Skill, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	key := normalizeID(id)
	s.mu.RLock()
	md, ok := s.methods[key]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "skill %s not found on %s", id, s.target)
	}
	return &skills.Skill{
		ID:          key,
		Name:        string(md.Name()),
		Description: fmt.Sprintf("gRPC method %s/%s", md.Parent().FullName(), md.Name()),
		Parameters:  schema.NewMessage(md.Input()),
		Path:        fmt.Sprintf("/%s/%s", md.Parent().FullName(), md.Name()),
	}, nil
}

// ListSkills returns the ids of all unary methods, sorted.
func (s *ReflectionSource) ListSkills(ctx context.Context) ([]string, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.methods))
	for id := range s.methods {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Refresh rediscovers the server's services.
func (s *ReflectionSource) Refresh(ctx context.Context) error {
	methods, err := s.reflect(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.methods = methods
	s.loaded = true
	s.mu.Unlock()
	s.logger.Debug("grpc reflection loaded", "target", s.target, "skills", len(methods))
	return nil
}

// Close closes the gRPC connection if the source created it.
func (s *ReflectionSource) Close() error {
	if s.owned && s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Target returns the gRPC target address.
func (s *ReflectionSource) Target() string {
	return s.target
}

func (s *ReflectionSource) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.Refresh(ctx)
}

// reflect discovers services using gRPC server reflection.
func (s *ReflectionSource) reflect(ctx context.Context) (map[string]protoreflect.MethodDescriptor, error) {
	client := grpc_reflection_v1alpha.NewServerReflectionClient(s.conn)
	stream, err := client.ServerReflectionInfo(ctx)
	if err != nil {
		return nil, fromStatus(err, "open reflection stream")
	}
	defer stream.CloseSend()

	ask := func(req *grpc_reflection_v1alpha.ServerReflectionRequest) (*grpc_reflection_v1alpha.ServerReflectionResponse, error) {
		if err := stream.Send(req); err != nil {
			return nil, fromStatus(err, "send reflection request")
		}
		resp, err := stream.Recv()
		if err != nil {
			return nil, fromStatus(err, "receive reflection response")
		}
		if e := resp.GetErrorResponse(); e != nil {
			return nil, fromStatus(status.Error(codes.Code(e.GetErrorCode()), e.GetErrorMessage()), "reflection")
		}
		return resp, nil
	}

	resp, err := ask(&grpc_reflection_v1alpha.ServerReflectionRequest{
		MessageRequest: &grpc_reflection_v1alpha.ServerReflectionRequest_ListServices{},
	})
	if err != nil {
		return nil, err
	}
	var services []string
	for _, svc := range resp.GetListServicesResponse().GetService() {
		// Skip reflection service itself
		if strings.HasPrefix(svc.GetName(), "grpc.reflection") {
			continue
		}
		services = append(services, svc.GetName())
	}

	// The server sends each file once per stream, so descriptors are
	// accumulated across responses and linked at the end.
	files := make(map[string]*descriptorpb.FileDescriptorProto)
	add := func(resp *grpc_reflection_v1alpha.ServerReflectionResponse) error {
		for _, raw := range resp.GetFileDescriptorResponse().GetFileDescriptorProto() {
			fd := &descriptorpb.FileDescriptorProto{}
			if err := proto.Unmarshal(raw, fd); err != nil {
				return errors.New(errors.CodeInvalidInput, "decode file descriptor", err)
			}
			files[fd.GetName()] = fd
		}
		return nil
	}
	for _, name := range services {
		resp, err := ask(&grpc_reflection_v1alpha.ServerReflectionRequest{
			MessageRequest: &grpc_reflection_v1alpha.ServerReflectionRequest_FileContainingSymbol{
				FileContainingSymbol: name,
			},
		})
		if err != nil {
			return nil, err
		}
		if err := add(resp); err != nil {
			return nil, err
		}
	}
	for missing := missingDeps(files); len(missing) > 0; missing = missingDeps(files) {
		for _, name := range missing {
			resp, err := ask(&grpc_reflection_v1alpha.ServerReflectionRequest{
				MessageRequest: &grpc_reflection_v1alpha.ServerReflectionRequest_FileByFilename{
					FileByFilename: name,
				},
			})
			if err != nil {
				return nil, err
			}
			if err := add(resp); err != nil {
				return nil, err
			}
			if _, ok := files[name]; !ok {
				return nil, errors.Newf(errors.CodeInvalidInput, "server did not return %s", name)
			}
		}
	}

	set := &descriptorpb.FileDescriptorSet{}
	for _, fd := range files {
		set.File = append(set.File, fd)
	}
	registry, err := protodesc.NewFiles(set)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "link reflected descriptors", err)
	}

	methods := make(map[string]protoreflect.MethodDescriptor)
	for _, name := range services {
		desc, err := registry.FindDescriptorByName(protoreflect.FullName(name))
		if err != nil {
			s.logger.Warn("reflected service not found", "service", name, "error", err)
			continue
		}
		sd, ok := desc.(protoreflect.ServiceDescriptor)
		if !ok {
			continue
		}
		for i := 0; i < sd.Methods().Len(); i++ {
			md := sd.Methods().Get(i)
			// Streaming methods do not take a single parameter payload.
			if md.IsStreamingClient() || md.IsStreamingServer() {
				continue
			}
			methods[string(md.FullName())] = md
		}
	}
	return methods, nil
}

func missingDeps(files map[string]*descriptorpb.FileDescriptorProto) []string {
	var missing []string
	seen := make(map[string]bool)
	for _, fd := range files {
		for _, dep := range fd.GetDependency() {
			if _, ok := files[dep]; !ok && !seen[dep] {
				seen[dep] = true
				missing = append(missing, dep)
			}
		}
	}
	sort.Strings(missing)
	return missing
}

// normalizeID turns /pkg.Service/Method into pkg.Service.Method.
func normalizeID(id string) string {
	id = strings.TrimPrefix(id, "/")
	return strings.Replace(id, "/", ".", 1)
}

// fromStatus maps gRPC status codes onto registry error codes.
func fromStatus(err error, msg string) error {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.NotFound:
		return errors.New(errors.CodeNotFound, msg, err)
	case codes.Unimplemented:
		return errors.New(errors.CodeNotFound, msg+": server reflection not enabled", err)
	case codes.DeadlineExceeded:
		return errors.New(errors.CodeTimeout, msg, err).WithRecoverable(true)
	case codes.Canceled:
		return errors.New(errors.CodeContextLost, msg, err)
	case codes.InvalidArgument:
		return errors.New(errors.CodeInvalidInput, msg, err)
	default:
		return errors.New(errors.CodeUnavailable, msg, err).WithRecoverable(true)
	}
}
