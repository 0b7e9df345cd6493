package social

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "tribo"

var errBadToken = errors.New("social: malformed session token")

// Session tokens are HS256 JWTs carrying the login and a session id. They
// deliberately have no expiry claim: a session lives until its user is
// removed, never on a timer. Revocation is server-side, in the registry's
// session table, so the signature alone is never enough to resolve one.
func signSessionToken(secret []byte, login, id string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:   tokenIssuer,
		Subject:  login,
		ID:       id,
		IssuedAt: jwt.NewNumericDate(now.UTC()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseSessionToken(secret []byte, token string) (id, login string, err error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errBadToken
		}
		return secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return "", "", errBadToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" || claims.ID == "" {
		return "", "", errBadToken
	}
	return claims.ID, claims.Subject, nil
}
