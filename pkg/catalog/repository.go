// Package catalog loads recipe catalogs from their sources.
//
// A [Repository] yields a validated [recipe.Catalog]; the planner never
// reads files or databases itself. [File] ingests the TOML [Document]
// format, [Memory] serves a catalog held in memory, [Mongo] stores recipes
// as documents in MongoDB, and [Cached] puts a [cache.Cache] in front of
// any of them.
package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/overclock/pkg/cache"
	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/recipe"
)

// Repository is a source of recipe catalogs.
type Repository interface {
	// Load returns the catalog. Callers own the returned catalog.
	Load(ctx context.Context) (recipe.Catalog, error)
	// Source identifies the repository in logs and cache keys.
	Source() string
}

// Versioner is implemented by repositories that can cheaply report a
// content version. Cached keys entries by it, so an edited source is
// reloaded before its cache entry expires.
type Versioner interface {
	Version(ctx context.Context) (string, error)
}

// Saver is implemented by repositories that accept catalogs.
type Saver interface {
	Save(ctx context.Context, cat recipe.Catalog) error
}

// File reads a TOML catalog document from disk.
type File struct {
	Path   string
	Logger *log.Logger

	// Report describes the last successful Load.
	Report *Report
}

// NewFile returns a repository for the document at path.
func NewFile(path string, logger *log.Logger) *File {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &File{Path: path, Logger: logger}
}

// Source returns "file:" and the absolute path.
func (f *File) Source() string {
	if abs, err := filepath.Abs(f.Path); err == nil {
		return "file:" + abs
	}
	return "file:" + f.Path
}

// Version hashes the file contents.
func (f *File) Version(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", err
	}
	return cache.Hash(data), nil
}

// Load reads, decodes and expands the document.
func (f *File) Load(ctx context.Context) (recipe.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "catalog file %s", f.Path)
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	cat, report, err := Build(doc, f.Logger)
	if err != nil {
		return nil, err
	}
	f.Report = report
	f.Logger.Info("loaded catalog", "path", f.Path,
		"recipes", report.Recipes, "ores", report.Ores, "generators", report.Generators, "skipped", len(report.Skipped))
	return cat, nil
}

// Memory serves a catalog held in memory. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	name string
	cat  recipe.Catalog
}

// NewMemory returns a repository holding a copy of cat.
func NewMemory(name string, cat recipe.Catalog) *Memory {
	return &Memory{name: name, cat: cat.Clone()}
}

// Source returns "memory:" and the name.
func (m *Memory) Source() string { return "memory:" + m.name }

// Load returns a copy of the held catalog.
func (m *Memory) Load(ctx context.Context) (recipe.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cat.Clone(), nil
}

// Save replaces the held catalog after validating it.
func (m *Memory) Save(_ context.Context, cat recipe.Catalog) error {
	if err := cat.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cat = cat.Clone()
	return nil
}

var (
	_ Repository = (*File)(nil)
	_ Versioner  = (*File)(nil)
	_ Repository = (*Memory)(nil)
	_ Saver      = (*Memory)(nil)
)
