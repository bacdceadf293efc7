package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
)

func TestAuthenticateDisabledAlwaysPasses(t *testing.T) {
	a := New(config.AuthConfig{Enabled: false})
	res, err := a.Authenticate(map[string]string{})
	if err != nil || !res.OK {
		t.Fatalf("expected pass when auth disabled, got %+v, %v", res, err)
	}
}

func TestAuthenticateAllowlistBypassesToken(t *testing.T) {
	a := New(config.AuthConfig{Enabled: true, AllowedDevices: []string{"device-1"}})
	res, err := a.Authenticate(map[string]string{"device-id": "device-1"})
	if err != nil || !res.OK {
		t.Fatalf("expected allowlist bypass to pass, got %+v, %v", res, err)
	}
}

func TestAuthenticateStaticToken(t *testing.T) {
	a := New(config.AuthConfig{Enabled: true, Tokens: map[string]string{"secret-token": "front-door"}})
	res, err := a.Authenticate(map[string]string{"authorization": "Bearer secret-token"})
	if err != nil || !res.OK || res.Principal != "front-door" {
		t.Fatalf("expected static token match, got %+v, %v", res, err)
	}
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	a := New(config.AuthConfig{Enabled: true})
	_, err := a.Authenticate(map[string]string{})
	if err == nil {
		t.Fatalf("expected an error for missing Authorization header")
	}
}

func TestAuthenticateJWTFallback(t *testing.T) {
	secret := "test-secret"
	claims := deviceClaims{
		DeviceID: "device-42",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}

	a := New(config.AuthConfig{Enabled: true, JWTSecret: secret})
	res, err := a.Authenticate(map[string]string{"authorization": "Bearer " + signed})
	if err != nil || !res.OK || res.Principal != "device-42" {
		t.Fatalf("expected JWT fallback to pass with device id, got %+v, %v", res, err)
	}
}

func TestAuthenticateRejectsInvalidToken(t *testing.T) {
	a := New(config.AuthConfig{Enabled: true, JWTSecret: "test-secret", Tokens: map[string]string{}})
	_, err := a.Authenticate(map[string]string{"authorization": "Bearer garbage"})
	if err == nil {
		t.Fatalf("expected an error for an unrecognized token")
	}
}
