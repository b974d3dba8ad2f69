package authz

import (
	"context"
	"log"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
)

// TokenVerifier is satisfied by *auth.Client.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// Authenticate resolves the request principal. A bearer token is verified as
// a Firebase ID token; an invalid one is rejected outright. Without a token
// the dev headers are honoured only when allowHeaders is set.
func Authenticate(verifier TokenVerifier, allowHeaders bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw, ok := bearerToken(r); ok && verifier != nil {
				tok, err := verifier.VerifyIDToken(r.Context(), raw)
				if err != nil {
					log.Printf("[Auth] rejected ID token: %v", err)
					http.Error(w, "unauthenticated", http.StatusUnauthorized)
					return
				}
				r = r.WithContext(WithPrincipal(r.Context(), UserPrincipal(tok.UID)))
			} else if allowHeaders {
				if p := headerPrincipal(r); p != "" {
					r = r.WithContext(WithPrincipal(r.Context(), p))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	tok, ok := strings.CutPrefix(h, "Bearer ")
	tok = strings.TrimSpace(tok)
	return tok, ok && tok != ""
}
