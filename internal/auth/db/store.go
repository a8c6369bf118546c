// Package db provides the sqlite backed store for the auth package.
package db

import (
	"context"
	"database/sql"

	"github.com/dstam/groundwork/internal/auth"
)

// Store is responsible for interacting with the database.
type Store struct {
	db *sql.DB
}

// New creates a new Store.
func New(db *sql.DB) *Store {
	return &Store{
		db: db,
	}
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (auth.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{
		tx: tx,
	}, nil
}
