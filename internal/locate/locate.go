// Package locate finds a file by walking up from a start directory until it
// hits the file, a project boundary marker, or the filesystem root.
package locate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// DefaultMarker bounds the search at the enclosing project root.
const DefaultMarker = "package.json"

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("file not found")

// NotFoundError reports an exhausted search.
type NotFoundError struct {
	Name string
	// Stop is the directory where the search gave up.
	Stop string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s (searched up to %s)", ErrNotFound, e.Name, e.Stop)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Locator searches upward from Dir, stopping at Marker or the filesystem root.
type Locator struct {
	Fs afero.Fs
	// Dir is where the search starts; "." when empty.
	Dir string
	// Marker stops the search in the directory that contains it.
	Marker string
}

// New returns a Locator over the OS filesystem starting at the working directory.
func New(marker string) Locator {
	return Locator{Fs: afero.NewOsFs(), Dir: ".", Marker: marker}
}

// Locate returns the closest directory at or above Dir containing name.
// The marker check only runs where name is absent, so a file beside the
// marker is still found.
func (l Locator) Locate(name string) (string, error) {
	fsys := l.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	marker := l.Marker
	if marker == "" {
		marker = DefaultMarker
	}
	dir := l.Dir
	if dir == "" {
		dir = "."
	}

	for {
		found, err := exists(fsys, filepath.Join(dir, name))
		if err != nil {
			return "", err
		}
		if found {
			return dir, nil
		}

		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", dir, err)
		}
		atMarker, err := exists(fsys, filepath.Join(abs, marker))
		if err != nil {
			return "", err
		}
		parent := filepath.Dir(abs)
		if atMarker || parent == abs {
			return "", &NotFoundError{Name: name, Stop: abs}
		}
		dir = parent
	}
}

func exists(fsys afero.Fs, path string) (bool, error) {
	_, err := fsys.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("error checking %s: %w", path, err)
}
