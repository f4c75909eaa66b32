// Package store is the persistent data layer (the relational store spec.md
// treats as an external collaborator): CRUD over users, servers, channels,
// messages, members, member roles, roles, and bans via pgx against the
// schema in internal/database's embedded migrations.
package store

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool with the queries the gateway, auth
// service, and REST handlers need. Each entity's queries live in their own
// file, mirroring the module-per-entity split of the system this was
// ported from.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store over an already-connected pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}
