// Package directory exposes the reference data deals point at: clients,
// contracts and users. It is maintained elsewhere and read-only here.
package directory

import (
	"context"
	"fmt"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
)

// Client is a customer a deal is made with.
type Client struct {
	ID       id.ID  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	IsActive bool   `db:"is_active" json:"isActive"`
}

// Contract is a framework agreement with a client.
type Contract struct {
	ID       id.ID  `db:"id" json:"id"`
	ClientID id.ID  `db:"client_id" json:"clientId"`
	Number   string `db:"number" json:"number"`
	IsActive bool   `db:"is_active" json:"isActive"`
}

// User is a staff member as known to the directory.
type User struct {
	ID       id.ID  `db:"id" json:"id"`
	Email    string `db:"email" json:"email"`
	Role     string `db:"role" json:"role"`
	IsActive bool   `db:"is_active" json:"isActive"`
}

// Directory resolves references. Missing rows yield NotFound errors.
type Directory interface {
	GetClient(ctx context.Context, clientID id.ID) (*Client, error)
	GetContract(ctx context.Context, contractID id.ID) (*Contract, error)
	GetUser(ctx context.Context, userID id.ID) (*User, error)
}

// Resolver validates references on behalf of the workflow.
type Resolver struct {
	dir Directory
}

// NewResolver creates a resolver over dir.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// ValidateDealParties checks that the client exists and is active and that
// the optional contract is active and belongs to that client.
func (r *Resolver) ValidateDealParties(ctx context.Context, clientID id.ID, contractID *id.ID) error {
	client, err := r.dir.GetClient(ctx, clientID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return apperror.NewValidation("unknown client").WithDetail("clientId", clientID.String())
		}
		return fmt.Errorf("get client: %w", err)
	}
	if !client.IsActive {
		return apperror.NewValidation("client is inactive").WithDetail("clientId", clientID.String())
	}

	if contractID == nil {
		return nil
	}
	contract, err := r.dir.GetContract(ctx, *contractID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return apperror.NewValidation("unknown contract").WithDetail("contractId", contractID.String())
		}
		return fmt.Errorf("get contract: %w", err)
	}
	if !contract.IsActive {
		return apperror.NewValidation("contract is inactive").WithDetail("contractId", contractID.String())
	}
	if contract.ClientID != clientID {
		return apperror.NewValidation("contract belongs to another client").
			WithDetail("contractId", contractID.String()).
			WithDetail("clientId", clientID.String())
	}
	return nil
}

// ValidateManager checks that userID is an active user who can own deals.
func (r *Resolver) ValidateManager(ctx context.Context, userID id.ID) (*User, error) {
	u, err := r.dir.GetUser(ctx, userID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewValidation("unknown user").WithDetail("managerId", userID.String())
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !u.IsActive {
		return nil, apperror.NewValidation("user is inactive").WithDetail("managerId", userID.String())
	}
	return u, nil
}
