// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

// Package store defines the contract every authorization backend
// implements. The hub depends only on this interface; whether entities
// come from an authfile or a database is wiring decided at startup.
package store

import (
	"context"
	"errors"

	"github.com/toeirei/gatehouse/internal/model"
)

// ErrUnavailable is returned when the backing store cannot be read at all
// (missing file, unreachable database). Fatal at startup; at reload the
// previous snapshot stays authoritative.
var ErrUnavailable = errors.New("authorization store unavailable")

// ErrMalformed is returned when the backing store was read but its
// contents could not be parsed into entities.
var ErrMalformed = errors.New("authorization store malformed")

// Loader loads the full set of authorized entities. Every call re-reads
// the backing store; results are never cached by the store itself.
type Loader interface {
	Load(ctx context.Context) (*model.Keychain, error)
}
