package config

import (
	"context"

	"github.com/DataGeek404/micro-finance-app-sub001/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BranchGuardPlugin scopes queries/updates/deletes to the caller's branch_id when the
// model has a branch_id column and the caller is not head office.
//
// NOTE:
// - Raw SQL is not scoped.
// - Admins and internal jobs bypass the guard through context flags.
// - A non-admin session without a branch is scoped to no rows.
type BranchGuardPlugin struct{}

func NewBranchGuardPlugin() *BranchGuardPlugin { return &BranchGuardPlugin{} }

func (p *BranchGuardPlugin) Name() string { return "branch_guard" }

func (p *BranchGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("branch_guard:query", branchGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("branch_guard:row", branchGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("branch_guard:update", branchGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("branch_guard:delete", branchGuardCallback); err != nil {
		return err
	}
	return nil
}

func branchGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Statement.Schema == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil || shouldBypassBranchScope(ctx) {
		return
	}
	if db.Statement.Schema.LookUpField("branch_id") == nil {
		return
	}
	branchID, ok := appctx.GetInt(ctx, appctx.ContextKeyBranchId)
	if !ok || branchID <= 0 {
		// a signed-in branch user without a branch matches nothing
		if _, session := appctx.GetBool(ctx, appctx.ContextKeyIsAdmin); session {
			db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "1 = 0"}}})
		}
		return
	}

	// ANDed with any caller-supplied branch_id filter, so ?branch_id= cannot widen the scope.
	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "branch_id"},
				Value:  branchID,
			},
		},
	})
}

func shouldBypassBranchScope(ctx context.Context) bool {
	if v, ok := appctx.GetBool(ctx, appctx.ContextKeySkipBranchScope); ok && v {
		return true
	}
	if v, ok := appctx.GetBool(ctx, appctx.ContextKeyIsAdmin); ok && v {
		return true
	}
	return false
}
