package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	_ "modernc.org/sqlite"

	"github.com/jllopis/skillbind/pkg/errors"
	"github.com/jllopis/skillbind/pkg/schema"
	"github.com/jllopis/skillbind/pkg/skills"
)

// SQLiteStore persists skills in SQLite. The parameter schema is stored as
// a FileDescriptorSet and rebuilt into a private descriptor pool on read.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed skill store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.Newf(errors.CodeInvalidInput, "db is nil")
	}
	if err := ensureSkillSchema(db); err != nil {
		return nil, errors.New(errors.CodeUnavailable, "create skill tables", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Put stores s, replacing any previous version.
func (st *SQLiteStore) Put(ctx context.Context, s *skills.Skill) error {
	set := descriptorSet(s.Parameters.Descriptor().ParentFile())
	descriptors, err := proto.Marshal(set)
	if err != nil {
		return errors.New(errors.CodeInternal, "encode descriptors", err).WithContext("skill", s.ID)
	}
	var defaults []byte
	if s.Defaults != nil {
		defaults, err = proto.MarshalOptions{Deterministic: true}.Marshal(s.Defaults)
		if err != nil {
			return errors.New(errors.CodeInternal, "encode defaults", err).WithContext("skill", s.ID)
		}
	}
	slots, err := json.Marshal(s.ResourceSlots)
	if err != nil {
		return errors.New(errors.CodeInternal, "encode resource slots", err).WithContext("skill", s.ID)
	}

	_, err = st.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO skills (
			id, name, description, message, descriptors, defaults, slots_json, result_key, body, path, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID,
		s.Name,
		s.Description,
		s.Parameters.Name(),
		descriptors,
		defaults,
		string(slots),
		s.ResultKey,
		s.Body,
		s.Path,
		time.Now().UTC(),
	)
	if err != nil {
		return errors.New(errors.CodeUnavailable, "store skill", err).WithContext("skill", s.ID)
	}
	return nil
}

// Get loads the skill with the given id.
func (st *SQLiteStore) Get(ctx context.Context, id string) (*skills.Skill, bool, error) {
	var (
		s           = &skills.Skill{ID: id}
		message     string
		descriptors []byte
		defaults    []byte
		slotsJSON   string
	)
	err := st.db.QueryRowContext(ctx, `
		SELECT name, description, message, descriptors, defaults, slots_json, result_key, body, path
		FROM skills WHERE id = ?
	`, id).Scan(
		&s.Name,
		&s.Description,
		&message,
		&descriptors,
		&defaults,
		&slotsJSON,
		&s.ResultKey,
		&s.Body,
		&s.Path,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.New(errors.CodeUnavailable, "load skill", err).WithContext("skill", id)
	}

	params, err := decodeSchema(descriptors, message)
	if err != nil {
		return nil, false, err
	}
	s.Parameters = params
	if defaults != nil {
		d := dynamicpb.NewMessage(params.Descriptor())
		if err := proto.Unmarshal(defaults, d); err != nil {
			return nil, false, errors.New(errors.CodeInternal, "decode defaults", err).WithContext("skill", id)
		}
		s.Defaults = d
	}
	if err := json.Unmarshal([]byte(slotsJSON), &s.ResourceSlots); err != nil {
		return nil, false, errors.New(errors.CodeInternal, "decode resource slots", err).WithContext("skill", id)
	}
	return s, true, nil
}

// Delete removes the skill with the given id.
func (st *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := st.db.ExecContext(ctx, `DELETE FROM skills WHERE id = ?`, id); err != nil {
		return errors.New(errors.CodeUnavailable, "delete skill", err).WithContext("skill", id)
	}
	return nil
}

// Clear removes every stored skill.
func (st *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := st.db.ExecContext(ctx, `DELETE FROM skills`); err != nil {
		return errors.New(errors.CodeUnavailable, "clear skills", err)
	}
	return nil
}

func ensureSkillSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS skills (
			id TEXT PRIMARY KEY,
			name TEXT,
			description TEXT,
			message TEXT NOT NULL,
			descriptors BLOB NOT NULL,
			defaults BLOB,
			slots_json TEXT NOT NULL,
			result_key TEXT,
			body TEXT,
			path TEXT,
			updated_at TIMESTAMP
		);
	`)
	return err
}

// descriptorSet collects fd and its transitive imports, dependencies first.
func descriptorSet(fd protoreflect.FileDescriptor) *descriptorpb.FileDescriptorSet {
	set := &descriptorpb.FileDescriptorSet{}
	seen := make(map[string]bool)
	var visit func(protoreflect.FileDescriptor)
	visit = func(f protoreflect.FileDescriptor) {
		if seen[f.Path()] {
			return
		}
		seen[f.Path()] = true
		imports := f.Imports()
		for i := 0; i < imports.Len(); i++ {
			visit(imports.Get(i).FileDescriptor)
		}
		set.File = append(set.File, protodesc.ToFileDescriptorProto(f))
	}
	visit(fd)
	return set
}

func decodeSchema(data []byte, message string) (*schema.Message, error) {
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &set); err != nil {
		return nil, errors.New(errors.CodeInternal, "decode descriptors", err)
	}
	files, err := protodesc.NewFiles(&set)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "link descriptors", err)
	}
	d, err := files.FindDescriptorByName(protoreflect.FullName(message))
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "find parameter message", err).WithContext("message", message)
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, errors.Newf(errors.CodeInternal, "%s is not a message", message)
	}
	return schema.NewMessage(md), nil
}
