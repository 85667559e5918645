package utils

import (
	"context"

	"github.com/mmdatafocus/double_entry/appctx"
)

// SetBusinessIdInContext marks ctx as acting for one tenant; the tenant guard scopes
// bare-model queries to it.
func SetBusinessIdInContext(ctx context.Context, businessId string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyBusinessId, businessId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyCorrelationId, correlationId)
}

// SetSkipTenantScopeInContext lets cross-tenant readers bypass the tenant guard.
func SetSkipTenantScopeInContext(ctx context.Context, skip bool) context.Context {
	return appctx.Set(ctx, appctx.ContextKeySkipTenantScope, skip)
}
