package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/poiesic/insightdocs/core"
)

// ObjectFetcher retrieves the raw bytes of an uploaded object by its
// locator. Implementations decide what a locator means: a filesystem
// path, an object-store key, a URL.
type ObjectFetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// FileFetcher resolves locators against the local filesystem,
// optionally relative to a root directory.
type FileFetcher struct {
	root string
}

// NewFileFetcher creates a fetcher rooted at dir. An empty dir resolves
// locators as given.
func NewFileFetcher(dir string) *FileFetcher {
	return &FileFetcher{root: dir}
}

// Fetch reads the file the locator points at.
func (f *FileFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if locator == "" {
		return nil, fmt.Errorf("%w: empty locator", core.ErrInvalidArgument)
	}
	path := locator
	if f.root != "" && !filepath.IsAbs(locator) {
		path = filepath.Join(f.root, locator)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: object %q", core.ErrNotFound, locator)
		}
		return nil, fmt.Errorf("fetch %q: %w", locator, err)
	}
	return data, nil
}
