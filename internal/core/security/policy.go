// Package security provides the authorization policy evaluated once per
// operation at the workflow boundary, before any mutation begins.
package security

import (
	"context"
	"fmt"

	"crm/internal/core/apperror"
	appctx "crm/internal/core/context"
)

// Role is the caller role supplied by the identity provider.
type Role string

const (
	RoleManager          Role = "MANAGER"
	RoleWarehouse        Role = "WAREHOUSE"
	RoleWarehouseManager Role = "WAREHOUSE_MANAGER"
	RoleAccountant       Role = "ACCOUNTANT"
	RoleAdmin            Role = "ADMIN"
	RoleSuperAdmin       Role = "SUPER_ADMIN"
)

// IsAdmin reports whether the role may act on any deal regardless of owner.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Operation names a guarded core operation. The string value doubles as the
// permission that grants it explicitly.
type Operation string

const (
	OpCreateDeal           Operation = "deal.create"
	OpStartWork            Operation = "deal.start_work"
	OpRequestStock         Operation = "deal.request_stock"
	OpWarehouseResponse    Operation = "deal.warehouse_response"
	OpSetItemQuantities    Operation = "deal.set_item_quantities"
	OpApproveFinance       Operation = "deal.approve_finance"
	OpRejectFinance        Operation = "deal.reject_finance"
	OpApproveAdmin         Operation = "deal.approve_admin"
	OpReject               Operation = "deal.reject"
	OpReopen               Operation = "deal.reopen"
	OpHoldShipment         Operation = "deal.hold_shipment"
	OpReleaseShipmentHold  Operation = "deal.release_shipment_hold"
	OpSubmitShipment       Operation = "deal.submit_shipment"
	OpCloseDeal            Operation = "deal.close"
	OpCancel               Operation = "deal.cancel"
	OpArchive              Operation = "deal.archive"
	OpReassign             Operation = "deal.reassign"
	OpAddItem              Operation = "deal.add_item"
	OpRemoveItem           Operation = "deal.remove_item"
	OpViewDeal             Operation = "deal.view"
	OpRecordPayment        Operation = "payment.record"
	OpCloseDay             Operation = "payment.close_day"
	OpViewFinance          Operation = "payment.view"
	OpRecordMovement       Operation = "inventory.record_movement"
	OpCreateProduct        Operation = "inventory.create_product"
	OpViewInventory        Operation = "inventory.view"
	OpViewAudit            Operation = "audit.view"
)

var (
	managers       = []Role{RoleManager, RoleAdmin, RoleSuperAdmin}
	warehouse      = []Role{RoleWarehouse, RoleWarehouseManager, RoleAdmin, RoleSuperAdmin}
	warehouseLeads = []Role{RoleWarehouseManager, RoleAdmin, RoleSuperAdmin}
	finance        = []Role{RoleAccountant, RoleAdmin, RoleSuperAdmin}
	admins         = []Role{RoleAdmin, RoleSuperAdmin}
	everyone       = []Role{RoleManager, RoleWarehouse, RoleWarehouseManager, RoleAccountant, RoleAdmin, RoleSuperAdmin}
)

// DefaultGrants is the role table for every operation.
func DefaultGrants() map[Operation][]Role {
	return map[Operation][]Role{
		OpCreateDeal:          managers,
		OpStartWork:           managers,
		OpRequestStock:        managers,
		OpAddItem:             managers,
		OpRemoveItem:          managers,
		OpSetItemQuantities:   managers,
		OpCloseDeal:           managers,
		OpCancel:              managers,
		OpReopen:              managers,
		OpArchive:             managers,
		OpWarehouseResponse:   warehouse,
		OpApproveFinance:      finance,
		OpRejectFinance:       finance,
		OpRecordPayment:       finance,
		OpCloseDay:            finance,
		OpApproveAdmin:        admins,
		OpReject:              admins,
		OpReassign:            admins,
		OpSubmitShipment:      warehouseLeads,
		OpHoldShipment:        warehouseLeads,
		OpReleaseShipmentHold: warehouseLeads,
		OpRecordMovement:      warehouseLeads,
		OpCreateProduct:       warehouseLeads,
		OpViewDeal:            everyone,
		OpViewFinance:         everyone,
		OpViewInventory:       everyone,
		OpViewAudit:           admins,
	}
}

// Policy maps (role, permission set, operation) to allow/deny.
type Policy struct {
	grants map[Operation]map[Role]struct{}
	rules  *RuleSet
}

// NewPolicy creates a policy from a role table and optional extra rules.
func NewPolicy(grants map[Operation][]Role, rules *RuleSet) *Policy {
	p := &Policy{
		grants: make(map[Operation]map[Role]struct{}, len(grants)),
		rules:  rules,
	}
	for op, roles := range grants {
		set := make(map[Role]struct{}, len(roles))
		for _, r := range roles {
			set[r] = struct{}{}
		}
		p.grants[op] = set
	}
	return p
}

// NewDefaultPolicy creates a policy with DefaultGrants and no extra rules.
func NewDefaultPolicy() *Policy {
	return NewPolicy(DefaultGrants(), nil)
}

// Allowed reports whether user may perform op.
func (p *Policy) Allowed(user *appctx.UserContext, op Operation) bool {
	if user == nil {
		return false
	}
	if _, ok := p.grants[op][Role(user.Role)]; ok {
		return true
	}
	if user.HasPermission(string(op)) {
		return true
	}
	return p.rules.Allows(op, user)
}

// Authorize returns nil when the caller in ctx may perform op.
func (p *Policy) Authorize(ctx context.Context, op Operation) error {
	user := appctx.GetUser(ctx)
	if user == nil {
		return apperror.NewUnauthorized("authentication required")
	}
	if !p.Allowed(user, op) {
		return apperror.NewForbidden(fmt.Sprintf("role %s may not perform %s", user.Role, op)).
			WithDetail("role", user.Role).
			WithDetail("operation", string(op))
	}
	return nil
}
