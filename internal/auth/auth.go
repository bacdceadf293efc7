// Package auth implements the auth collaborator (spec.md section 6): a
// static bearer-token table, a device-id allowlist bypass, and a signed
// JWT fallback verifier. Grounded on original_source's AuthMiddleware
// (core/auth.py): allowlist bypass first, then the static token table,
// then JWT — using github.com/golang-jwt/jwt/v5, the JWT dependency
// already present in the teacher's go.mod and wired for device-auth use
// across several of the pack's voice-service manifests (e.g.
// xingjian-wati-astra-voice-service, voicetyped-voicetyped).
package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/corerrors"
)

// Result is the outcome of an authentication attempt.
type Result struct {
	OK        bool
	Principal string // display name (static token) or device id (JWT/allowlist)
}

// Authenticator implements spec.md's "authenticate(headers) → {ok,
// principal}" contract.
type Authenticator struct {
	cfg config.AuthConfig
}

// New builds an Authenticator from the auth configuration snapshot.
func New(cfg config.AuthConfig) *Authenticator {
	return &Authenticator{cfg: cfg}
}

// deviceClaims is the JWT payload original_source's AuthToken issues: a
// device identifier carried as a custom claim alongside the standard
// registered claims.
type deviceClaims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// Authenticate validates one connection's headers. If auth is disabled in
// configuration, every connection passes (spec.md: "configuration controls
// whether auth is enforced").
func (a *Authenticator) Authenticate(headers map[string]string) (Result, error) {
	if !a.cfg.Enabled {
		return Result{OK: true, Principal: "anonymous"}, nil
	}

	deviceID := headers["device-id"]
	if deviceID != "" {
		for _, allowed := range a.cfg.AllowedDevices {
			if allowed == deviceID {
				return Result{OK: true, Principal: deviceID}, nil
			}
		}
	}

	authHeader := headers["authorization"]
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return Result{}, corerrors.ErrAuthFailed
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")

	if name, ok := a.cfg.Tokens[token]; ok {
		return Result{OK: true, Principal: name}, nil
	}

	if a.cfg.JWTSecret != "" {
		if tokenDeviceID, ok := a.verifyJWT(token); ok {
			principal := deviceID
			if principal == "" {
				principal = tokenDeviceID
			}
			return Result{OK: true, Principal: principal}, nil
		}
	}

	return Result{}, corerrors.ErrAuthFailed
}

func (a *Authenticator) verifyJWT(tokenString string) (string, bool) {
	claims := &deviceClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: unexpected signing method")
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		return "", false
	}
	return claims.DeviceID, true
}
