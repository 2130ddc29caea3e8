// Package schema reads target table schemas from a directory of files.
//
// A schema file holds one object:
//
//	{"table": "dbo.People", "columns": [{"name": "age", "type": "INT", "nullable": false}]}
//
// Files ending in .txt or .json are JSON; .yaml and .yml are YAML. Every
// file is checked against the shape in schema.cue before its names and
// types are validated by core.NewTableSchema.
package schema

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/csvload/internal/core"
)

//go:embed schema.cue
var schemaCue string

var nameRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+\.(?i:txt|json|ya?ml)$`)

// Document is a schema file as written.
type Document struct {
	Table   string             `json:"table" yaml:"table"`
	Columns []core.ColumnInput `json:"columns" yaml:"columns"`
}

// FileError reports a schema file that exists but cannot be used.
type FileError struct {
	Name string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("invalid schema file %s: %v", e.Name, e.Err)
}

// Details lists the individual problems, one per line of output.
func (e *FileError) Details() []string {
	var verr *core.ValidationError
	if errors.As(e.Err, &verr) {
		return verr.Messages()
	}
	return strings.Split(strings.TrimSpace(e.Err.Error()), "\n")
}

// Repository serves schemas from a directory. It implements
// core.SchemaResolver.
type Repository struct {
	dir string
}

// New returns a repository over dir, creating it when missing.
func New(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create schema dir: %w", err)
	}
	return &Repository{dir: dir}, nil
}

// List returns the names of all schema files, sorted.
func (r *Repository) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !nameRegex.MatchString(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Get reads and validates the named schema file.
func (r *Repository) Get(name string) (Document, error) {
	doc, _, err := r.load(name)
	return doc, err
}

// Resolve implements core.SchemaResolver.
func (r *Repository) Resolve(ctx context.Context, name string) (core.TableSchema, error) {
	if err := ctx.Err(); err != nil {
		return core.TableSchema{}, err
	}
	_, schema, err := r.load(name)
	return schema, err
}

func (r *Repository) load(name string) (Document, core.TableSchema, error) {
	path, err := r.path(name)
	if err != nil {
		return Document{}, core.TableSchema{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, core.TableSchema{}, fmt.Errorf("%w: %s", core.ErrSchemaNotFound, name)
		}
		return Document{}, core.TableSchema{}, fmt.Errorf("read schema %s: %w", name, err)
	}

	doc, err := decode(name, data)
	if err != nil {
		return Document{}, core.TableSchema{}, &FileError{Name: name, Err: err}
	}
	schema, err := core.NewTableSchema(doc.Table, doc.Columns)
	if err != nil {
		return Document{}, core.TableSchema{}, &FileError{Name: name, Err: err}
	}
	return doc, schema, nil
}

// path validates name and returns the file it refers to. Symlinks that
// leave the directory are rejected.
func (r *Repository) path(name string) (string, error) {
	if !nameRegex.MatchString(name) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidSchemaName, name)
	}
	path := filepath.Join(r.dir, name)

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", core.ErrSchemaNotFound, name)
		}
		return "", fmt.Errorf("resolve schema %s: %w", name, err)
	}
	root, err := filepath.EvalSymlinks(r.dir)
	if err != nil {
		return "", fmt.Errorf("resolve schema dir: %w", err)
	}
	if rel, err := filepath.Rel(root, resolved); err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %q points outside the schema directory", core.ErrInvalidSchemaName, name)
	}
	return resolved, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// decode checks data against #Schema and unmarshals it.
func decode(name string, data []byte) (Document, error) {
	if err := checkShape(name, data); err != nil {
		return Document{}, err
	}

	var doc Document
	var err error
	if isYAML(name) {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return Document{}, fmt.Errorf("decode: %w", err)
	}
	return doc, nil
}

func checkShape(name string, data []byte) error {
	cueCtx := cuecontext.New()
	def := cueCtx.CompileString(schemaCue).LookupPath(cue.ParsePath("#Schema"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("building schema definition: %w", err)
	}

	var value cue.Value
	if isYAML(name) {
		file, err := cueyaml.Extract(name, data)
		if err != nil {
			return fmt.Errorf("parse yaml: %w", err)
		}
		value = cueCtx.BuildFile(file)
	} else {
		expr, err := cuejson.Extract(name, data)
		if err != nil {
			return fmt.Errorf("parse json: %w", err)
		}
		value = cueCtx.BuildExpr(expr)
	}
	if err := value.Err(); err != nil {
		return fmt.Errorf("build value: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}
