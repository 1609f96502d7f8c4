package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"kitahub.org/internal/audit"
	"kitahub.org/internal/auth"
	"kitahub.org/internal/obs"
	"kitahub.org/internal/rbac"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.validator == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.ObserveTokenVerification("missing")
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.validator.Verify(r.Context(), token, time.Now().UTC())
		if err != nil {
			kind := auth.FailureKind(err)
			obs.ObserveTokenVerification(kind)
			if a.auditLog != nil {
				_ = a.auditLog.Append(r.Context(), audit.Entry{
					Action:  audit.ActionLogin,
					Success: false,
					Details: audit.SessionDetails{Reason: kind},
				})
			}
			// Same response body for every rejection reason.
			msg := "invalid token"
			if a.devMode {
				msg = "invalid token: " + kind
			}
			writeError(w, r, http.StatusUnauthorized, msg)
			return
		}
		obs.ObserveTokenVerification("ok")

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAccess runs a full authorization check for management endpoints.
// The decision is audited by the rbac service, deny and error both map to
// an HTTP failure here.
func (a *API) requireAccess(w http.ResponseWriter, r *http.Request, resource string, action rbac.Action) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	decision, err := a.rbac.Authorize(r.Context(), principal.PersonID, resource, action, rbac.Context{})
	if err != nil {
		if errors.Is(err, audit.ErrWriteFailure) {
			writeError(w, r, http.StatusServiceUnavailable, "audit log unavailable")
			return auth.Principal{}, false
		}
		writeError(w, r, http.StatusInternalServerError, "authorization failed")
		return auth.Principal{}, false
	}
	if !decision.Allowed {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return auth.Principal{}, false
	}
	return principal, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// withRequestMeta copies client metadata into the context so audit entries
// written anywhere below the HTTP layer pick it up.
func withRequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithRequestMeta(r.Context(), clientIP(r), r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
