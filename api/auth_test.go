package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "unit-test-secret"

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	t.Setenv(envAuthTestMode, "1")
	t.Setenv(envTestJWTSecret, testSecret)
	return NewAuth(nil, "https://api.tasksync.example", "https://tasksync.eu.auth0.com/")
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub": "auth0|u1",
		"aud": "https://api.tasksync.example",
		"iss": "https://tasksync.eu.auth0.com/",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
}

func TestUserIDFromAuthHeader(t *testing.T) {
	auth := newTestAuth(t)

	userID, err := auth.UserIDFromAuthHeader("Bearer " + signedToken(t, validClaims()))
	if err != nil {
		t.Fatalf("expected valid token to pass, got %v", err)
	}
	if userID != "auth0|u1" {
		t.Fatalf("unexpected user id: %q", userID)
	}
}

func TestUserIDFromAuthHeaderRejectsExpired(t *testing.T) {
	auth := newTestAuth(t)
	claims := validClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()

	if _, err := auth.UserIDFromAuthHeader("Bearer " + signedToken(t, claims)); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestUserIDFromAuthHeaderRejectsMissingExpiry(t *testing.T) {
	auth := newTestAuth(t)
	claims := validClaims()
	delete(claims, "exp")

	if _, err := auth.UserIDFromAuthHeader("Bearer " + signedToken(t, claims)); err == nil {
		t.Fatal("expected token without expiry to be rejected")
	}
}

func TestUserIDFromAuthHeaderRejectsWrongAudience(t *testing.T) {
	auth := newTestAuth(t)
	claims := validClaims()
	claims["aud"] = "https://someone-else.example"

	if _, err := auth.UserIDFromAuthHeader("Bearer " + signedToken(t, claims)); err == nil {
		t.Fatal("expected wrong audience to be rejected")
	}
}

func TestUserIDFromAuthHeaderRejectsMissingSub(t *testing.T) {
	auth := newTestAuth(t)
	claims := validClaims()
	delete(claims, "sub")

	if _, err := auth.UserIDFromAuthHeader("Bearer " + signedToken(t, claims)); err == nil {
		t.Fatal("expected token without sub to be rejected")
	}
}

func TestUserIDFromAuthHeaderRejectsBadSignature(t *testing.T) {
	auth := newTestAuth(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := auth.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected forged signature to be rejected")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{name: "empty header", header: "", wantErr: errMissingAuthorization},
		{name: "no scheme", header: "a.b.c", wantErr: errBadAuthorization},
		{name: "wrong scheme", header: "Basic a.b.c", wantErr: errBadAuthorization},
		{name: "not a jwt", header: "Bearer not-a-jwt", wantErr: errBadAuthorization},
		{name: "blank token", header: "Bearer   ", wantErr: errBadAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := bearerToken(tt.header); err != tt.wantErr {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	token, err := bearerToken("bearer a.b.c")
	if err != nil {
		t.Fatalf("scheme match must be case-insensitive, got %v", err)
	}
	if token != "a.b.c" {
		t.Fatalf("unexpected token: %q", token)
	}
}
