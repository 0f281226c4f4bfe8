package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TokenManager issues and validates compact HS256 JWTs whose subject
// is a user id, matching the reference repo's minimal hand-rolled JWT
// implementation (no external JWT library in the reference's stack).
type TokenManager struct {
	secret []byte
}

// NewTokenManager constructs a TokenManager from the configured
// JWT_SECRET.
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

// Generate issues a token for userID valid for ttl.
func (tm *TokenManager) Generate(userID string, ttl time.Duration) (string, error) {
	if userID == "" || ttl <= 0 {
		return "", fmt.Errorf("invalid token params")
	}
	now := time.Now().Unix()
	exp := time.Now().Add(ttl).Unix()

	header := map[string]any{"alg": "HS256", "typ": "JWT"}
	claims := map[string]any{"sub": userID, "iat": now, "exp": exp, "iss": "persona-feedback-engine"}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	enc := base64.RawURLEncoding
	unsigned := enc.EncodeToString(headerJSON) + "." + enc.EncodeToString(claimsJSON)

	mac := hmac.New(sha256.New, tm.secret)
	mac.Write([]byte(unsigned))
	sig := enc.EncodeToString(mac.Sum(nil))
	return unsigned + "." + sig, nil
}

// Validate validates an HS256 JWT's signature and expiry and returns
// its subject (user id).
func (tm *TokenManager) Validate(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid token")
	}
	unsigned := parts[0] + "." + parts[1]
	enc := base64.RawURLEncoding

	sigBytes, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("bad signature encoding")
	}
	mac := hmac.New(sha256.New, tm.secret)
	mac.Write([]byte(unsigned))
	if !hmac.Equal(mac.Sum(nil), sigBytes) {
		return "", fmt.Errorf("invalid signature")
	}

	claimsJSON, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("bad claims encoding")
	}
	var claims map[string]any
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return "", fmt.Errorf("bad claims")
	}

	expVal, ok := claims["exp"].(float64)
	if !ok {
		return "", fmt.Errorf("no exp")
	}
	if time.Now().Unix() >= int64(expVal) {
		return "", fmt.Errorf("token expired")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("no sub")
	}
	return sub, nil
}
