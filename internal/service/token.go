package service

import (
	"fmt"
	"time"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/config"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const accessTokenType = "access"

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// JWTIssuer implements port.TokenIssuer with HS256 tokens.
type JWTIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTIssuer builds the issuer from the shared auth configuration.
func NewJWTIssuer(cfg *config.AuthConfig) (*JWTIssuer, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret must not be empty")
	}
	return &JWTIssuer{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.JWTIssuer,
		ttl:    cfg.TokenTTL,
		now:    time.Now,
	}, nil
}

// Issue signs a token for subject, valid for the configured TTL.
func (j *JWTIssuer) Issue(subject string) (string, error) {
	now := j.now()
	claims := JWTClaims{
		Type: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    j.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, algorithm, expiry, issuer and token type.
func (j *JWTIssuer) Validate(tokenString string) (*domain.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secret, nil
	},
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido"}
	}
	if claims.Type != accessTokenType {
		return nil, &domain.ErrUnauthorized{Message: "Tipo de token inválido"}
	}

	return &domain.TokenClaims{Subject: claims.Subject, TokenID: claims.ID}, nil
}
