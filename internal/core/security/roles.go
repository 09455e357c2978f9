// Package security decides which roles may drive which document transitions.
package security

// Role names as issued in access tokens.
const (
	RoleAdmin            = "admin"
	RoleSaleManager      = "sale_manager"
	RoleWarehouseManager = "warehouse_manager"
	RoleWarehouseStaff   = "warehouse_staff"
	RolePurchaser        = "purchaser"
)

// Action names a guarded operation.
type Action string

const (
	ActionSalesApprove       Action = "sales.approve"
	ActionDisposalApprove    Action = "disposal.approve"
	ActionNoteApprove        Action = "note.approve"
	ActionPurchaseApprove    Action = "purchase.approve"
	ActionReceiptApprove     Action = "receipt.approve"
	ActionStocktakingApprove Action = "stocktaking.approve"
	ActionLedgerDelete       Action = "ledger.delete"
)

// DefaultRules maps each action to a CEL expression over roles, is_admin and user_id.
// Administrators pass every rule.
func DefaultRules() map[Action]string {
	return map[Action]string{
		ActionSalesApprove:       `'sale_manager' in roles`,
		ActionDisposalApprove:    `'sale_manager' in roles`,
		ActionPurchaseApprove:    `'sale_manager' in roles`,
		ActionNoteApprove:        `'warehouse_manager' in roles`,
		ActionReceiptApprove:     `'warehouse_manager' in roles`,
		ActionStocktakingApprove: `'warehouse_manager' in roles`,
		ActionLedgerDelete:       `'admin' in roles`,
	}
}
