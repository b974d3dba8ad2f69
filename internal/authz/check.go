package authz

import (
	"context"
	"log"
	"net/http"
)

const Anonymous = "user:anonymous"

type principalKey struct{}

// WithPrincipal stores the authenticated principal on ctx.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFromRequest returns the principal set by Authenticate, or
// anonymous.
func PrincipalFromRequest(r *http.Request) string {
	if p, ok := r.Context().Value(principalKey{}).(string); ok && p != "" {
		return p
	}
	return Anonymous
}

// headerPrincipal is the development fallback.
// Order of precedence:
// - act_as cookie (if set)
// - X-Principal header
// - X-User header
func headerPrincipal(r *http.Request) string {
	if c, err := r.Cookie("act_as"); err == nil && c.Value != "" {
		return c.Value
	}
	if v := r.Header.Get("X-Principal"); v != "" {
		return v
	}
	if v := r.Header.Get("X-User"); v != "" {
		return UserPrincipal(v)
	}
	return ""
}

// Can checks authorization using the provided client and request context.
func Can(ctx context.Context, c Client, r *http.Request, object, relation string) (bool, error) {
	principal := PrincipalFromRequest(r)
	allowed, err := c.Check(ctx, principal, object, relation)
	if err != nil {
		// Be explicit in logs; do not allow on error by default.
		log.Printf("authz check error user=%s object=%s relation=%s: %v", principal, object, relation, err)
		return false, err
	}
	return allowed, nil
}
