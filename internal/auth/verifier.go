package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier turns an inbound connection credential into a stable player
// identity. Verification may be slow (remote key lookups etc.), so it takes a
// context and runs on the connection's own goroutine.
type Verifier interface {
	Verify(ctx context.Context, credential string) (string, error)
}

// JWTVerifier validates HMAC-signed JWTs and reads the player identity from
// the "sub" claim.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(ctx context.Context, credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", errors.New("AUTH_FAILED: Missing credential")
	}

	// Clients may send the raw token or the "Bearer <token>" header form.
	if parts := strings.Fields(credential); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		credential = parts[1]
	}

	token, err := jwt.Parse(credential, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("AUTH_FAILED: %w", err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("AUTH_FAILED: Token has no subject")
	}

	return subject, nil
}

// Issue signs a token for the given identity. Used by tests and local tooling;
// production tokens come from the external identity service.
func (v *JWTVerifier) Issue(identity string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": identity,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
