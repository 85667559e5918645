package config

import (
	"context"
	"strings"

	"github.com/mmdatafocus/double_entry/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const tenantColumn = "business_id"

// TenantGuardPlugin adds `business_id = <ctx business>` to queries, updates and deletes of
// ledger tables whose WHERE does not already name the tenant. Ledger code always filters
// by business explicitly; the guard covers preloads and counts built from a bare model.
//
// Raw SQL is not guarded. Cross-tenant readers (the outbox dispatcher, the backfill
// business listing) opt out with appctx.ContextKeySkipTenantScope.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Query().Before("gorm:query").Register("tenant_guard:query", scopeToTenant); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("tenant_guard:row", scopeToTenant); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("tenant_guard:update", scopeToTenant); err != nil {
		return err
	}
	return cb.Delete().Before("gorm:delete").Register("tenant_guard:delete", scopeToTenant)
}

func scopeToTenant(db *gorm.DB) {
	stmt := db.Statement
	if stmt == nil || stmt.Context == nil || stmt.Schema == nil {
		return
	}
	businessId := tenantFromContext(stmt.Context)
	if businessId == "" {
		return
	}
	if stmt.Schema.LookUpField(tenantColumn) == nil {
		return
	}
	if whereNamesTenant(stmt.Clauses["WHERE"]) {
		return
	}
	stmt.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: clause.Column{Table: stmt.Table, Name: tenantColumn}, Value: businessId},
	}})
}

// tenantFromContext returns "" when the context carries no tenant or opts out of scoping.
func tenantFromContext(ctx context.Context) string {
	if skip, ok := appctx.GetBool(ctx, appctx.ContextKeySkipTenantScope); ok && skip {
		return ""
	}
	businessId, _ := appctx.GetString(ctx, appctx.ContextKeyBusinessId)
	return businessId
}

func whereNamesTenant(c clause.Clause) bool {
	where, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range where.Exprs {
		if namesTenant(e) {
			return true
		}
	}
	return false
}

func namesTenant(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return isTenantColumn(v.Column)
	case clause.Neq:
		return isTenantColumn(v.Column)
	case clause.IN:
		return isTenantColumn(v.Column)
	case clause.AndConditions:
		return anyNamesTenant(v.Exprs)
	case clause.OrConditions:
		return anyNamesTenant(v.Exprs)
	case clause.Expr:
		// string conditions: best effort
		return strings.Contains(strings.ToLower(v.SQL), tenantColumn)
	case clause.NamedExpr:
		return strings.Contains(strings.ToLower(v.SQL), tenantColumn)
	}
	return false
}

func anyNamesTenant(exprs []clause.Expression) bool {
	for _, e := range exprs {
		if namesTenant(e) {
			return true
		}
	}
	return false
}

func isTenantColumn(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, tenantColumn)
	case clause.Column:
		return strings.EqualFold(c.Name, tenantColumn)
	}
	return false
}
