package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

// TokenIssuer signs and validates bearer tokens. Tokens are JWT HS256 with
// two claims: uid (account ID) and expiration (unix seconds).
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	parser *jwt.Parser
}

// NewTokenIssuer creates a token issuer with the given signing secret and
// token lifetime
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: secret,
		ttl:    ttl,
		// Snowflake user IDs exceed float64's exact-integer range, so
		// numeric claims must come back as json.Number, not float64
		parser: jwt.NewParser(jwt.WithJSONNumber()),
	}
}

// Issue creates a signed token for the user
func (ti *TokenIssuer) Issue(userID int64) (string, error) {
	claims := jwt.MapClaims{
		"uid":        userID,
		"expiration": time.Now().Add(ti.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate checks the token signature and expiry, returning the user ID.
// An optional "Bearer " prefix is stripped.
func (ti *TokenIssuer) Validate(token string) (int64, error) {
	token = strings.TrimPrefix(token, "Bearer ")

	parsed, err := ti.parser.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return ti.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrTokenInvalid
	}

	uid, err := int64Claim(claims, "uid")
	if err != nil {
		return 0, ErrTokenInvalid
	}
	expiration, err := int64Claim(claims, "expiration")
	if err != nil {
		return 0, ErrTokenInvalid
	}

	if expiration <= time.Now().Unix() {
		return 0, ErrTokenExpired
	}

	return uid, nil
}

func int64Claim(claims jwt.MapClaims, name string) (int64, error) {
	num, ok := claims[name].(json.Number)
	if !ok {
		return 0, ErrTokenInvalid
	}
	return num.Int64()
}
