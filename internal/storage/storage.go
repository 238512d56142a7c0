// Package storage persists rendered artifacts under a content root and hands
// back stable references. The local implementation keeps naming deterministic
// so retried uploads land on the same ref instead of duplicating the object.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Request describes one artifact upload.
type Request struct {
	// SourcePath is the local file to store.
	SourcePath string
	// Name is the object name inside the store, optionally with slashes.
	Name string
	// ContentType is recorded alongside the object.
	ContentType string
	// AllowRandomSuffix permits a random name suffix when the target name is
	// already taken. Leave it off for idempotent uploads: a retry then
	// overwrites the same object instead of creating a sibling.
	AllowRandomSuffix bool
}

// Object identifies a stored artifact.
type Object struct {
	// Ref is the stable reference other components persist.
	Ref string
	// URL is the user-facing location of the object.
	URL string
}

// Store defines artifact storage behaviour.
type Store interface {
	Put(ctx context.Context, req Request) (Object, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Resolve(ref string) string
}

// Local stores artifacts in a directory tree.
type Local struct {
	root    string
	baseURL string
}

// NewLocal constructs a directory-backed store rooted at root.
func NewLocal(root, baseURL string) *Local {
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

// Put copies the source file into the store under the requested name.
func (l *Local) Put(ctx context.Context, req Request) (Object, error) {
	if req.SourcePath == "" {
		return Object{}, errors.New("source path required")
	}
	name := cleanName(req.Name)
	if name == "" {
		name = filepath.Base(req.SourcePath)
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	target := filepath.Join(l.root, filepath.FromSlash(name))
	if req.AllowRandomSuffix {
		if _, err := os.Stat(target); err == nil {
			ext := path.Ext(name)
			stem := strings.TrimSuffix(name, ext)
			name = fmt.Sprintf("%s-%s%s", stem, uuid.NewString()[:8], ext)
			target = filepath.Join(l.root, filepath.FromSlash(name))
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Object{}, fmt.Errorf("create object dir: %w", err)
	}
	if err := copyFile(req.SourcePath, target); err != nil {
		return Object{}, fmt.Errorf("store object %s: %w", name, err)
	}

	return Object{Ref: name, URL: l.urlFor(name)}, nil
}

// Open returns a reader over a stored object.
func (l *Local) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(l.root, filepath.FromSlash(cleanName(ref))))
}

// Resolve maps a ref to its local filesystem path.
func (l *Local) Resolve(ref string) string {
	return filepath.Join(l.root, filepath.FromSlash(cleanName(ref)))
}

func (l *Local) urlFor(name string) string {
	if l.baseURL == "" {
		return "file://" + filepath.Join(l.root, filepath.FromSlash(name))
	}
	return l.baseURL + "/" + name
}

// cleanName normalizes an object name and strips path escapes.
func cleanName(name string) string {
	cleaned := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimPrefix(cleaned, "/")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

var _ Store = (*Local)(nil)
