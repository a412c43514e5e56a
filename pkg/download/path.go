package download

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// stateSuffix is appended by axel to the destination to keep the resume state
const stateSuffix = ".st"

// PathClean replace ~/ by user's home directory, expands environment
// variables and call filepath.Clean to secure the path
func PathClean(p string) string {
	p = os.ExpandEnv(p)
	if expanded, err := homedir.Expand(p); err == nil {
		p = expanded
	}
	return filepath.Clean(p)
}

// StatePath gives the resume state file of a destination
func StatePath(destination string) string {
	return destination + stateSuffix
}

// fileSize returns the size of the file, and false when it doesn't exist
func fileSize(name string) (int64, bool) {
	s, err := os.Stat(name)
	if err != nil || s.IsDir() {
		return 0, false
	}
	return s.Size(), true
}

// HasResumeState tells if the destination has both a partial file and a state file
func HasResumeState(destination string) bool {
	_, partial := fileSize(destination)
	_, state := fileSize(StatePath(destination))
	return partial && state
}

// ClearResumeState removes the state file and, when asked, the partial file
func ClearResumeState(destination string, withPartial bool) error {
	var errs []error
	if err := os.Remove(StatePath(destination)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, err)
	}
	if withPartial {
		if err := os.Remove(destination); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
