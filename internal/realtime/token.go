package realtime

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidGrant = errors.New("invalid realtime token")
	ErrGrantExpired = errors.New("realtime token expired")
)

// Grant is a minted realtime credential handed to a client.
type Grant struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Channels  []string  `json:"channels"`
}

// GrantClaims is the signed payload inside a grant token. Channels lists
// the capabilities granted up front; conversation channels are authorized
// per-subscription by the gateway instead.
type GrantClaims struct {
	UserID    int      `json:"user_id"`
	Channels  []string `json:"channels"`
	ExpiresAt int64    `json:"exp"`
	Nonce     string   `json:"nonce"`
}

// reissueMargin keeps cached grants from being handed out too close to
// their expiry.
const reissueMargin = 30 * time.Second

// TokenIssuer mints and verifies short-lived realtime credentials. Minted
// grants are cached per user for their validity window minus a safety
// margin so reconnects do not reissue.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration

	mu    sync.Mutex
	cache map[int]Grant
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: secret,
		ttl:    ttl,
		cache:  make(map[int]Grant),
	}
}

// Issue returns a grant for the user, reusing a cached one while it is
// still comfortably inside its validity window.
func (i *TokenIssuer) Issue(userID int) (Grant, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if grant, ok := i.cache[userID]; ok && time.Until(grant.ExpiresAt) > reissueMargin {
		return grant, nil
	}

	expiresAt := time.Now().Add(i.ttl)
	claims := GrantClaims{
		UserID:    userID,
		Channels:  []string{UserConversationsChannel(userID), PresenceChannel},
		ExpiresAt: expiresAt.Unix(),
		Nonce:     uuid.NewString(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return Grant{}, err
	}

	mac := hmac.New(sha256.New, i.secret)
	mac.Write(payload)
	token := fmt.Sprintf("%s|%s",
		base64.URLEncoding.EncodeToString(payload),
		base64.URLEncoding.EncodeToString(mac.Sum(nil)))

	grant := Grant{Token: token, ExpiresAt: expiresAt, Channels: claims.Channels}
	i.cache[userID] = grant
	return grant, nil
}

// Verify checks a grant token's signature and expiry.
func (i *TokenIssuer) Verify(token string) (GrantClaims, error) {
	parts := strings.Split(token, "|")
	if len(parts) != 2 {
		return GrantClaims{}, ErrInvalidGrant
	}

	payload, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return GrantClaims{}, ErrInvalidGrant
	}
	signature, err := base64.URLEncoding.DecodeString(parts[1])
	if err != nil {
		return GrantClaims{}, ErrInvalidGrant
	}

	mac := hmac.New(sha256.New, i.secret)
	mac.Write(payload)
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return GrantClaims{}, ErrInvalidGrant
	}

	var claims GrantClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return GrantClaims{}, ErrInvalidGrant
	}
	if claims.UserID == 0 {
		return GrantClaims{}, ErrInvalidGrant
	}
	if time.Now().Unix() >= claims.ExpiresAt {
		return GrantClaims{}, ErrGrantExpired
	}
	return claims, nil
}
