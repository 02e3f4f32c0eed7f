//go:build !linux

package process

import "errors"

// FindClaude is only implemented on Linux.
func FindClaude() ([]Claude, error) {
	return nil, errors.ErrUnsupported
}
