package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "attest/pkg/domain-errors"
	authmw "attest/pkg/platform/middleware/auth"
)

// Claims are the host-issued bearer claims naming the wallet that owns the
// proof sessions.
type Claims struct {
	WalletID string `json:"wallet_id"`
	jwt.RegisteredClaims
}

// Service signs and validates HS256 wallet tokens.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey, issuer string) *Service {
	return &Service{signingKey: []byte(signingKey), issuer: issuer}
}

// Issue signs a token for walletID. Hosts normally mint these themselves;
// the server uses Issue only in tooling and tests.
func (s *Service) Issue(walletID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		WalletID: walletID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.WalletID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token carries no wallet")
	}
	return claims, nil
}

// ValidateToken satisfies the auth middleware's validator contract.
func (s *Service) ValidateToken(tokenString string) (*authmw.Claims, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.Claims{WalletID: claims.WalletID, TokenID: claims.ID}, nil
}
