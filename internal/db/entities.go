// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/toeirei/gatehouse/internal/model"
	"github.com/toeirei/gatehouse/internal/store"
)

// EntityModel maps the `entities` table for Bun queries. key_data holds
// the base64 of the key's SSH wire marshal.
type EntityModel struct {
	bun.BaseModel `bun:"table:entities"`
	ID            int64  `bun:"id,pk,autoincrement"`
	Name          string `bun:"name"`
	Role          string `bun:"role"`
	Algorithm     string `bun:"algorithm"`
	KeyData       string `bun:"key_data"`
	Comment       string `bun:"comment"`
	IsActive      bool   `bun:"is_active"`
}

// Store is the database implementation of store.Loader.
type Store struct {
	bun *bun.DB
}

// Load reads every active entity row and builds a keychain. Query errors
// map to store.ErrUnavailable, bad row contents to store.ErrMalformed.
func (s *Store) Load(ctx context.Context) (*model.Keychain, error) {
	var rows []EntityModel
	if err := s.bun.NewSelect().Model(&rows).Where("is_active = ?", true).Order("id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	entities := make([]model.Entity, 0, len(rows))
	for _, row := range rows {
		entity, err := rowToEntity(row)
		if err != nil {
			return nil, fmt.Errorf("%w: entity id %d: %v", store.ErrMalformed, row.ID, err)
		}
		entities = append(entities, entity)
	}

	kc, err := model.NewKeychain(entities)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrMalformed, err)
	}
	return kc, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.bun.Close()
}

func rowToEntity(row EntityModel) (model.Entity, error) {
	role, err := model.ParseRole(row.Role)
	if err != nil {
		return model.Entity{}, err
	}
	wire, err := base64.StdEncoding.DecodeString(row.KeyData)
	if err != nil {
		return model.Entity{}, fmt.Errorf("invalid key data: %v", err)
	}
	name := row.Name
	if name == "" {
		name = fmt.Sprintf("%s-%d", role, row.ID)
	}
	return model.Entity{
		Name:      name,
		Role:      role,
		Algorithm: row.Algorithm,
		Key:       string(wire),
		Comment:   row.Comment,
	}, nil
}
