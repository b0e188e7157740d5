// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

// Package authfile implements the file-backed authorization store.
//
// The grammar is one entity per line:
//
//	<role> <authorized_keys line>
//
// where <role> is "standard" or "elevated" (legacy "admin" is accepted)
// and the rest of the line is a plain authorized_keys entry, options
// prefix included. The entry's comment becomes the entity name. Blank
// lines and lines starting with '#' are skipped.
package authfile

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/toeirei/gatehouse/internal/model"
	"github.com/toeirei/gatehouse/internal/store"
)

// Store reads entities from an authfile on disk. Every Load re-reads the
// file in full; the store keeps no state between calls.
type Store struct {
	path string
}

// New returns a file-backed store for the given path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load parses the authfile into a keychain. A missing or unreadable file
// maps to store.ErrUnavailable, any bad line to store.ErrMalformed.
func (s *Store) Load(ctx context.Context) (*model.Keychain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrUnavailable, s.path, err)
	}

	var entities []model.Entity
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entity, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", store.ErrMalformed, s.path, i+1, err)
		}
		if entity.Name == "" {
			entity.Name = fmt.Sprintf("%s-%d", entity.Role, len(entities)+1)
		}
		entities = append(entities, entity)
	}

	kc, err := model.NewKeychain(entities)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrMalformed, s.path, err)
	}
	return kc, nil
}

// parseLine splits one authfile line into an entity. The role is the
// first whitespace-separated field; everything after it must parse as an
// authorized_keys entry.
func parseLine(line string) (model.Entity, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return model.Entity{}, fmt.Errorf("expected '<role> <authorized_keys line>'")
	}

	role, err := model.ParseRole(fields[0])
	if err != nil {
		return model.Entity{}, err
	}

	keyLine := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
	pub, comment, _, _, err := ssh.ParseAuthorizedKey([]byte(keyLine))
	if err != nil {
		return model.Entity{}, fmt.Errorf("invalid public key: %v", err)
	}

	return model.Entity{
		Name:      comment,
		Role:      role,
		Algorithm: pub.Type(),
		Key:       string(pub.Marshal()),
		Comment:   comment,
	}, nil
}
