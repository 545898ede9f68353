package middleware

import (
	"context"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
)

// Authorizer is the part of *goGuard.Engine the guards need.
type Authorizer interface {
	Authorize(ctx context.Context, token string, op goGuard.OperationClass) (*goGuard.Principal, error)
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by a guard.
func PrincipalFromContext(ctx context.Context) (*goGuard.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*goGuard.Principal)
	return p, ok && p != nil
}

// Guard rejects requests whose bearer token is not allowed to perform op.
func Guard(engine Authorizer, op goGuard.OperationClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, goGuard.ErrEngineNotReady)
				return
			}

			token, ok := BearerToken(r)
			if !ok {
				WriteError(w, goGuard.ErrSessionInvalid)
				return
			}

			p, err := engine.Authorize(r.Context(), token, op)
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireRead(engine Authorizer) func(http.Handler) http.Handler {
	return Guard(engine, goGuard.OpRead)
}

func RequireWrite(engine Authorizer) func(http.Handler) http.Handler {
	return Guard(engine, goGuard.OpWrite)
}

func RequireAdmin(engine Authorizer) func(http.Handler) http.Handler {
	return Guard(engine, goGuard.OpAdmin)
}

// RequireAdminCritical also enforces the admin MFA gate.
func RequireAdminCritical(engine Authorizer) func(http.Handler) http.Handler {
	return Guard(engine, goGuard.OpAdminCritical)
}

// BearerToken extracts the token from an "Authorization: Bearer" header. The
// scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	const bearer = "bearer "
	value := r.Header.Get("Authorization")
	if len(value) <= len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}
