// Package apperr holds sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a page that changed on disk after it was loaded.
	ErrConflict = errors.New("conflict")
	// ErrBusy reports that a link pass is already running.
	ErrBusy = errors.New("busy")
)
