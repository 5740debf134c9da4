// Package directory_repo reads clients, contracts and users from PostgreSQL.
package directory_repo

import (
	"context"

	"github.com/georgysavva/scany/v2/pgxscan"

	"crm/internal/core/id"
	"crm/internal/domain/directory"
	"crm/internal/infrastructure/storage/postgres"
)

// DirectoryRepo implements directory.Directory.
type DirectoryRepo struct {
	db postgres.QuerierProvider
}

var _ directory.Directory = (*DirectoryRepo)(nil)

func NewDirectoryRepo(db postgres.QuerierProvider) *DirectoryRepo {
	return &DirectoryRepo{db: db}
}

func (r *DirectoryRepo) GetClient(ctx context.Context, clientID id.ID) (*directory.Client, error) {
	var c directory.Client
	err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &c,
		"SELECT id, name, is_active FROM clients WHERE id = $1", clientID)
	if err != nil {
		return nil, postgres.MapError(err, "get client", "client", clientID)
	}
	return &c, nil
}

func (r *DirectoryRepo) GetContract(ctx context.Context, contractID id.ID) (*directory.Contract, error) {
	var c directory.Contract
	err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &c,
		"SELECT id, client_id, number, is_active FROM contracts WHERE id = $1", contractID)
	if err != nil {
		return nil, postgres.MapError(err, "get contract", "contract", contractID)
	}
	return &c, nil
}

func (r *DirectoryRepo) GetUser(ctx context.Context, userID id.ID) (*directory.User, error) {
	var u directory.User
	err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &u,
		"SELECT id, email, role, is_active FROM users WHERE id = $1", userID)
	if err != nil {
		return nil, postgres.MapError(err, "get user", "user", userID)
	}
	return &u, nil
}
