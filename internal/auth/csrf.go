package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidCSRF = errors.New("invalid csrf token")

type csrfClaims struct {
	SessionHash string `json:"sid"`
	jwt.RegisteredClaims
}

// CSRFSigner issues anti-forgery tokens bound to a session token. The
// session token itself never appears in the claims, only its hash.
type CSRFSigner struct {
	secret []byte
}

func NewCSRFSigner(secret string) *CSRFSigner {
	return &CSRFSigner{secret: []byte(secret)}
}

func (c *CSRFSigner) Issue(sessionToken string) (string, error) {
	claims := &csrfClaims{SessionHash: hashToken(sessionToken)}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign csrf token: %w", err)
	}
	return signed, nil
}

// Verify checks that presented was issued by this signer for sessionToken.
func (c *CSRFSigner) Verify(presented, sessionToken string) error {
	if presented == "" {
		return ErrInvalidCSRF
	}

	token, err := jwt.ParseWithClaims(presented, &csrfClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidCSRF
	}

	claims, ok := token.Claims.(*csrfClaims)
	if !ok || claims.SessionHash != hashToken(sessionToken) {
		return ErrInvalidCSRF
	}
	return nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
