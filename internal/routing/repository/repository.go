// Package repository persists the routing bounded context: the assignment
// ledger, the broker directory read model, lead context reads, and the
// routing parameter row.
package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the pgx-backed implementation of every store interface in
// this package.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a repository bound to the given connection pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ AssignmentStore = (*Repository)(nil)
	_ BrokerDirectory = (*Repository)(nil)
	_ LeadReader      = (*Repository)(nil)
	_ ParameterReader = (*Repository)(nil)
	_ PropertyWriter  = (*Repository)(nil)
)
