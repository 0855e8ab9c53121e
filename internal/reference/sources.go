package reference

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/Lllllllleong/lettercheck/internal/gcp"
)

// Guideline files carry one of these extensions; the name is the base name
// without it.
var extensions = []string{".md", ".txt"}

// DirSource reads guidelines from a local directory.
type DirSource struct {
	Dir string
}

func (d DirSource) Read(_ context.Context, name string) ([]byte, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: invalid name %q", ErrNotFound, name)
	}
	for _, ext := range extensions {
		b, err := os.ReadFile(filepath.Join(d.Dir, name+ext))
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (d DirSource) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := trimExt(e.Name()); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// GCSSource reads guidelines stored as objects under a prefix.
type GCSSource struct {
	Bucket *storage.BucketHandle
	Prefix string
}

func (g GCSSource) Read(ctx context.Context, name string) ([]byte, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: invalid name %q", ErrNotFound, name)
	}
	for _, ext := range extensions {
		b, err := gcp.ReadObject(ctx, g.Bucket, path.Join(g.Prefix, name+ext))
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, storage.ErrObjectNotExist) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (g GCSSource) List(ctx context.Context) ([]string, error) {
	prefix := strings.TrimSuffix(g.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	it := g.Bucket.Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs objects under %q: %w", prefix, err)
		}
		if attrs.Name == "" {
			continue // synthetic prefix entry
		}
		if name, ok := trimExt(strings.TrimPrefix(attrs.Name, prefix)); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func trimExt(file string) (string, bool) {
	for _, ext := range extensions {
		if name, ok := strings.CutSuffix(file, ext); ok && name != "" {
			return name, true
		}
	}
	return "", false
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && name != "." && name != ".."
}
