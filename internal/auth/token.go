package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// SessionClaims is the payload of a signed session token. Tokens are issued
// by the identity service; this side only verifies them.
type SessionClaims struct {
	UserID    int   `json:"user_id"`
	ExpiresAt int64 `json:"exp"`
}

// Verifier validates HMAC-signed session tokens in the format
// "payload|signature" with both parts base64url-encoded.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier with the shared session secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Sign creates a signed token for the given claims.
func (v *Verifier) Sign(claims SessionClaims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	signature := mac.Sum(nil)
	return fmt.Sprintf("%s|%s",
		base64.URLEncoding.EncodeToString(payload),
		base64.URLEncoding.EncodeToString(signature)), nil
}

// Verify checks the signature and expiry and returns the authenticated
// user id.
func (v *Verifier) Verify(token string) (int, error) {
	parts := strings.Split(token, "|")
	if len(parts) != 2 {
		return 0, ErrInvalidToken
	}

	payload, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return 0, ErrInvalidToken
	}
	signature, err := base64.URLEncoding.DecodeString(parts[1])
	if err != nil {
		return 0, ErrInvalidToken
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return 0, ErrInvalidToken
	}

	var claims SessionClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return 0, ErrInvalidToken
	}
	if claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	if claims.ExpiresAt != 0 && time.Now().Unix() >= claims.ExpiresAt {
		return 0, ErrTokenExpired
	}
	return claims.UserID, nil
}
