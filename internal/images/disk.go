package images

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// URLPrefix is the public path under which uploaded images are served
const URLPrefix = "/uploads/"

// ErrOutsideRoot is returned for references that resolve outside the upload directory
var ErrOutsideRoot = errors.New("image reference escapes upload directory")

// DiskStore releases images kept in a local upload directory
type DiskStore struct {
	root string
}

// NewDiskStore creates a DiskStore rooted at dir
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{root: filepath.Clean(dir)}
}

// Root returns the upload directory
func (d *DiskStore) Root() string {
	return d.root
}

// Path maps a /uploads/<name> reference to a file under the root.
// ok is false for references the store does not own, such as external URLs.
func (d *DiskStore) Path(ref string) (path string, ok bool, err error) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, URLPrefix) {
		return "", false, nil
	}
	name := strings.TrimPrefix(ref, URLPrefix)
	if name == "" {
		return "", false, nil
	}
	path = filepath.Join(d.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(d.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false, fmt.Errorf("%w: %s", ErrOutsideRoot, ref)
	}
	return path, true, nil
}

// Release removes the file behind ref. Missing files and foreign references are ignored.
func (d *DiskStore) Release(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, ok, err := d.Path(ref)
	if err != nil || !ok {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release image %s: %w", ref, err)
	}
	return nil
}
