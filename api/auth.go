package api

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const (
	envAuthTestMode  = "AUTH0_TEST_MODE"
	envTestJWTSecret = "TEST_JWT_SECRET"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

// Auth validates incoming JWT tokens and resolves them to user IDs.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte

	parser *jwt.Parser
}

// NewAuth creates a new Auth instance. When AUTH0_TEST_MODE=1 tokens are
// verified with the HS256 secret from TEST_JWT_SECRET instead of the JWKS.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	a := &Auth{JWKS: jwks, Audience: audience, Issuer: issuer}

	if os.Getenv(envAuthTestMode) == "1" {
		secret := os.Getenv(envTestJWTSecret)
		if secret == "" {
			panic("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
		a.TestMode = true
		a.TestSecret = []byte(secret)
	}

	if a.TestMode {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return a
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization
// header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	token, err := bearerToken(h)
	if err != nil {
		return "", err
	}

	var parsed *jwt.Token
	if a.TestMode {
		parsed, err = a.parser.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.TestSecret, nil
		})
	} else {
		if a.JWKS == nil {
			return "", errors.New("jwks not configured")
		}
		parsed, err = a.parser.Parse(token, a.JWKS.Keyfunc)
	}
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := time.Now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return "", errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return "", errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

func bearerToken(header string) (string, error) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return "", errMissingAuthorization
	}
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errBadAuthorization
	}
	token := strings.TrimSpace(parts[1])
	if token == "" || strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}
