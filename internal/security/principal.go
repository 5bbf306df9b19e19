// Package security carries the authenticated caller through a request:
// identity and authorities for access checks, and the raw bearer token for
// forwarding to downstream services.
package security

import (
	"context"
	"slices"
)

const (
	RoleUser          = "USER"
	RoleCreditUser    = "CREDIT_USER"
	RoleOverdraftUser = "OVERDRAFT_USER"
	RoleSuperuser     = "SUPERUSER"
	RoleDealSuperuser = "DEAL_SUPERUSER"
	RoleContractorRus = "CONTRACTOR_RUS"
)

type Roles []string

func (r Roles) Has(role string) bool {
	return slices.Contains(r, role)
}

func (r Roles) HasAny(roles ...string) bool {
	for _, role := range roles {
		if r.Has(role) {
			return true
		}
	}
	return false
}

type Principal struct {
	UserID string
	Roles  Roles
	Token  string
}

type ctxKey string

const principalKey ctxKey = "principal"

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// UserID returns the caller id, or "system" for calls without a principal
// (scheduled jobs, queue consumers).
func UserID(ctx context.Context) string {
	if p, ok := FromContext(ctx); ok && p.UserID != "" {
		return p.UserID
	}
	return "system"
}

func Token(ctx context.Context) string {
	p, _ := FromContext(ctx)
	return p.Token
}
