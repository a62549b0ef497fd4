// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes attached to supervisor errors.
const (
	CodeNotFound       = "PLUGIN_NOT_FOUND"
	CodeInvalidState   = "PLUGIN_INVALID_STATE"
	CodeInvalidHandler = "PLUGIN_INVALID_HANDLER"
	CodeInvalidWorker  = "PLUGIN_INVALID_WORKER"
	CodeSpawnFailed    = "PLUGIN_SPAWN_FAILED"
)

// Sentinel errors for programmatic error checking.
var (
	// ErrNotFound is returned for a plugin name the catalog does not know.
	ErrNotFound = errors.New("plugin not found")
	// ErrInvalidState is returned when an operation does not fit the
	// plugin's lifecycle state.
	ErrInvalidState = errors.New("invalid plugin state")
	// ErrInvalidHandler is returned when registering a nil callback.
	ErrInvalidHandler = errors.New("invalid callback handler")
	// ErrInvalidWorker is returned when a factory does not produce a usable worker.
	ErrInvalidWorker = errors.New("invalid worker")
	// ErrEmpty is returned by NextMsg and NextAny when there is nothing to read.
	ErrEmpty = errors.New("no message available")
	// ErrClosed is returned by operations on a closed manager.
	ErrClosed = errors.New("manager is closed")
)

func errNotFound(name string) error {
	return oops.Code(CodeNotFound).With("plugin", name).
		Wrapf(ErrNotFound, "plugin %q does not exist", name)
}

func errInvalidState(name, reason string) error {
	return oops.Code(CodeInvalidState).With("plugin", name).With("reason", reason).
		Wrapf(ErrInvalidState, "plugin %q %s", name, reason)
}

func errInvalidWorker(name, reason string) error {
	return oops.Code(CodeInvalidWorker).With("plugin", name).
		Wrapf(ErrInvalidWorker, "plugin %q: %s", name, reason)
}

func errSpawnFailed(name string, err error) error {
	return oops.Code(CodeSpawnFailed).With("plugin", name).
		Wrapf(err, "spawn plugin %q", name)
}
