// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model holds the value types shared across Gatehouse: entities,
// roles and the keychain loaded from an authorization store.
package model

import "fmt"

// Role is the permission tier attached to an entity.
type Role int

const (
	// RoleStandard may chat.
	RoleStandard Role = iota
	// RoleElevated may additionally trigger a live registry reload.
	RoleElevated
)

// ParseRole converts a store representation of a role into a Role.
// "admin" is the legacy spelling of "elevated" found in older authfiles.
func ParseRole(s string) (Role, error) {
	switch s {
	case "standard", "user":
		return RoleStandard, nil
	case "elevated", "admin":
		return RoleElevated, nil
	}
	return RoleStandard, fmt.Errorf("unknown role %q", s)
}

// String returns the canonical store spelling of the role.
func (r Role) String() string {
	if r == RoleElevated {
		return "elevated"
	}
	return "standard"
}

// Entity is an immutable identity record: a named principal bound to a
// single public key. Entities are plain values; two entities with the same
// fields are the same identity regardless of where they are stored.
type Entity struct {
	Name      string
	Role      Role
	Algorithm string
	// Key is the SSH wire marshal of the public key. It is byte-comparable
	// and serves as the lookup key everywhere in the hub.
	Key     string
	Comment string
}

// String returns the name with an elevation marker, e.g. "bob (elevated)".
func (e Entity) String() string {
	if e.Role == RoleElevated {
		return fmt.Sprintf("%s (elevated)", e.Name)
	}
	return e.Name
}

// Keychain is the result of loading an authorization store: the entity
// list plus the set of their keys. KeyPool always equals the set of keys
// appearing in Entities; stores enforce this when building the keychain.
type Keychain struct {
	Entities []Entity
	KeyPool  map[string]struct{}
}

// NewKeychain builds a keychain from a list of entities. It rejects
// duplicate keys: one key maps to at most one entity.
func NewKeychain(entities []Entity) (*Keychain, error) {
	pool := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if _, dup := pool[e.Key]; dup {
			return nil, fmt.Errorf("duplicate key for entity %q", e.Name)
		}
		pool[e.Key] = struct{}{}
	}
	return &Keychain{Entities: entities, KeyPool: pool}, nil
}
