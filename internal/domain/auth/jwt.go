// Package auth validates the bearer tokens issued by the identity service.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appctx "milkwms/internal/core/context"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret string
	// Issuer, when set, must match the iss claim.
	Issuer string
	// Leeway tolerates clock skew on exp/nbf.
	Leeway time.Duration
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret: secret,
		Issuer: "milkwms",
		Leeway: 30 * time.Second,
	}
}

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID  string   `json:"uid"`
	Email   string   `json:"email"`
	Roles   []string `json:"roles"`
	IsAdmin bool     `json:"adm,omitempty"`
}

// JWTService validates HS256 tokens.
type JWTService struct {
	config JWTConfig
	parser *jwt.Parser
}

// NewJWTService creates a new JWT service.
func NewJWTService(config JWTConfig) *JWTService {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	return &JWTService{config: config, parser: jwt.NewParser(opts...)}
}

// ValidateToken validates JWT and returns user context.
func (s *JWTService) ValidateToken(tokenString string) (*appctx.UserContext, error) {
	claims := &Claims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return &appctx.UserContext{
		UserID:    userID,
		Email:     claims.Email,
		Roles:     claims.Roles,
		IsAdmin:   claims.IsAdmin,
		TokenID:   claims.ID,
	}, nil
}

// Sign issues a token for claims. Tokens normally come from the identity
// service; this exists for local tooling and tests.
func (s *JWTService) Sign(claims Claims) (string, error) {
	if claims.Issuer == "" {
		claims.Issuer = s.config.Issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
