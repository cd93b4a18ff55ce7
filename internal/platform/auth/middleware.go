// Package auth guards the API with HS256 bearer tokens. The service is
// read-only over already-collected records, so a single shared-secret scheme
// is enough; there are no roles to distinguish.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// ContextSubjectKey is where the middleware stores the token subject.
const ContextSubjectKey = "auth_subject"

// Middleware validates Authorization: Bearer tokens signed with the shared
// secret. An empty secret disables authentication; the config layer refuses
// that combination in production.
func Middleware(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return next(c)
			}
			token, err := parseBearer(c.Request().Header.Get("Authorization"), key)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			if sub, err := token.Claims.GetSubject(); err == nil {
				c.Set(ContextSubjectKey, sub)
			}
			return next(c)
		}
	}
}

func parseBearer(header string, key []byte) (*jwt.Token, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, fmt.Errorf("auth: missing bearer token")
	}
	token, err := jwt.Parse(strings.TrimPrefix(header, prefix),
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method %q", t.Method.Alg())
			}
			return key, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}
	return token, nil
}

// IssueToken mints a token for the given subject. Used by operators to hand
// out API credentials; the server itself never calls it.
func IssueToken(secret, subject string, claims map[string]interface{}) (string, error) {
	all := jwt.MapClaims{"sub": subject}
	for k, v := range claims {
		all[k] = v
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, all).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
