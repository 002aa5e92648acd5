package signature

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionTokenType = "game_session"

var ErrUnresolvableToken = errors.New("player token not resolvable")

// SessionClaims is what a minted player token binds: the account and the
// game it was launched for.
type SessionClaims struct {
	Type   string `json:"type"`
	GameID string `json:"game_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

type SessionTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	opaque bool
}

type SessionOption func(*SessionTokens)

// WithOpaqueTokens lets Resolve fall back to unsigned base64 tokens for
// providers that pass their own player reference instead of ours.
func WithOpaqueTokens() SessionOption {
	return func(s *SessionTokens) { s.opaque = true }
}

func NewSessionTokens(secret string, ttl time.Duration, opts ...SessionOption) *SessionTokens {
	s := &SessionTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Mint issues the player token handed to the provider at game launch.
func (s *SessionTokens) Mint(accountID uint64, gameID string) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("session secret is required")
	}

	now := s.now()
	claims := SessionClaims{
		Type:   sessionTokenType,
		GameID: gameID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	return signed, nil
}

// Resolve maps a provider-supplied token to an account reference. It accepts
// a JWT we signed (user_id, else sub). With WithOpaqueTokens it also accepts a
// base64 JSON document (player_id, else user_id) or base64 of a bare
// identifier.
func (s *SessionTokens) Resolve(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnresolvableToken
	}

	ref, err := s.fromJWT(token)
	if err == nil && ref != "" {
		return ref, nil
	}

	if !s.opaque {
		return "", ErrUnresolvableToken
	}

	return fromOpaque(token)
}

func (s *SessionTokens) fromJWT(token string) (string, error) {
	claims := &SessionClaims{}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("parse jwt: %w", err)
	}

	if claims.UserID != "" {
		return claims.UserID, nil
	}

	return claims.Subject, nil
}

func fromOpaque(token string) (string, error) {
	raw, err := decodeBase64(token)
	if err != nil {
		return "", ErrUnresolvableToken
	}

	decoded := strings.TrimSpace(string(raw))
	if decoded == "" {
		return "", ErrUnresolvableToken
	}

	if !strings.HasPrefix(decoded, "{") {
		return decoded, nil
	}

	var doc map[string]any
	err = json.Unmarshal([]byte(decoded), &doc)
	if err != nil {
		return "", ErrUnresolvableToken
	}

	for _, key := range []string{"player_id", "user_id"} {
		switch v := doc[key].(type) {
		case string:
			if v != "" {
				return v, nil
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
	}

	return "", ErrUnresolvableToken
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
	}

	return nil, ErrUnresolvableToken
}
