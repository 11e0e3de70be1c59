// README: Bearer-token parsing for customer/driver/admin sessions.
//
// Credential storage and token issuance live outside this repository; this
// package only verifies HS256 session tokens minted by the account service.
package auth

import (
	"errors"
	"strconv"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// ParseBearer extracts and validates a Bearer JWT from an Authorization
// header value and returns the caller's Principal.
func ParseBearer(header, secret string) (*Principal, error) {
	if header == "" {
		return nil, ErrUnauthenticated
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, ErrUnauthenticated
	}
	return parseJWT(strings.TrimSpace(parts[1]), secret)
}

func parseJWT(tokenStr, secret string) (*Principal, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}

	type claims struct {
		Role string `json:"role"`
		jwt.RegisteredClaims
	}

	tok, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrUnauthenticated
	}
	c, _ := tok.Claims.(*claims)
	if c == nil || c.Subject == "" || c.Role == "" {
		return nil, ErrUnauthenticated
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	role := Role(strings.ToLower(c.Role))
	switch role {
	case RoleCustomer, RoleDriver, RoleSupport, RoleAdmin:
	default:
		return nil, ErrUnauthenticated
	}
	return &Principal{ID: id, Role: role}, nil
}
