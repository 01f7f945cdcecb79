package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "amlcore/pkg/domain"
	dErrors "amlcore/pkg/domain-errors"
)

// Claims are the access token claims. The subject is the owner on whose
// behalf operations are recorded.
type Claims struct {
	OwnerID string `json:"owner_id"`
	jwt.RegisteredClaims
}

// TokenService signs and validates HS256 owner tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
}

func NewTokenService(signingKey, issuer string) *TokenService {
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// Issue signs a token for owner valid for ttl from now.
func (s *TokenService) Issue(owner id.OwnerID, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		OwnerID: owner.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateToken parses tokenString and resolves the owner it names.
func (s *TokenService) ValidateToken(tokenString string) (id.OwnerID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.OwnerID{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return id.OwnerID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return id.OwnerID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	owner, err := id.ParseOwnerID(claims.OwnerID)
	if err != nil {
		return id.OwnerID{}, dErrors.New(dErrors.CodeUnauthorized, "token does not name an owner")
	}
	return owner, nil
}
