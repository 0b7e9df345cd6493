package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"tribo.social/internal/social"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withSession attaches the bearer session token, when present, to the
// request context. Token validity is the registry's call: handlers pass the
// token down and a dead session surfaces as an unknown-user error there.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(authHeader)
		if strings.TrimSpace(header) == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractBearerToken(header)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(social.ContextWithToken(r.Context(), token)))
	})
}

// sessionToken pulls the bearer token out of the context or answers 401.
func sessionToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := social.TokenFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return "", false
	}
	return token, true
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
