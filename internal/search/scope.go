package search

import (
	"deal-service/internal/domain"
	"deal-service/internal/security"
)

// Scope applies the role gate to a payload. It returns the payload that may be
// executed and false when the caller is not allowed to run the search at all.
//
// Superusers search freely. Everybody else may only filter by deal type (with
// an optional status list) and only by the types their roles grant; an empty
// payload is narrowed to exactly those types.
func Scope(p Payload, roles security.Roles) (Payload, bool) {
	if roles.HasAny(security.RoleSuperuser, security.RoleDealSuperuser) {
		return p, true
	}

	allowed := allowedTypes(roles)

	if p.IsEmpty() {
		if len(allowed) == 0 {
			return Payload{}, false
		}
		return Payload{Types: allowed}, true
	}

	if p.hasOtherCriteria() || len(p.Types) == 0 {
		return Payload{}, false
	}

	for _, t := range p.Types {
		if !contains(allowed, t) {
			return Payload{}, false
		}
	}

	return p, true
}

func allowedTypes(roles security.Roles) []string {
	var types []string
	if roles.Has(security.RoleCreditUser) {
		types = append(types, domain.TypeCredit)
	}
	if roles.Has(security.RoleOverdraftUser) {
		types = append(types, domain.TypeOverdraft)
	}
	return types
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
