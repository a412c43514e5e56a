//go:build !(linux || darwin || freebsd || windows)

package preflight

import (
	"errors"
	"runtime"
)

func freeSpace(dir string) (uint64, error) {
	return 0, errors.New("free space check not supported on " + runtime.GOOS)
}
