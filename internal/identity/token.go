package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the authenticated user resolved from a provider-issued
// access token. It is the only identity the rest of the application
// ever sees.
type Principal struct {
	UserID      string
	Email       string
	FullName    string
	Role        string
	SellerPhone string
}

// IsSeller reports whether the principal's profile role allows listing
// creation.
func (p *Principal) IsSeller() bool {
	return p.Role == "seller"
}

type metadataClaims struct {
	FullName    string `json:"full_name"`
	Role        string `json:"role"`
	SellerPhone string `json:"seller_phone"`
}

// accessClaims mirrors the provider's JWT claim layout: subject is the
// user id and user_metadata carries the profile fields.
type accessClaims struct {
	Email        string         `json:"email"`
	UserMetadata metadataClaims `json:"user_metadata"`
	jwt.RegisteredClaims
}

// ParseAccessToken validates a provider-issued HMAC-signed access token
// and extracts the session principal from its claims.
func ParseAccessToken(tokenString, jwtSecret string) (*Principal, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token has expired: %w", err)
		}
		return nil, fmt.Errorf("token is invalid: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}

	userID := claims.Subject
	if userID == "" {
		return nil, errors.New("user id not found in token claims")
	}

	return &Principal{
		UserID:      userID,
		Email:       claims.Email,
		FullName:    claims.UserMetadata.FullName,
		Role:        claims.UserMetadata.Role,
		SellerPhone: claims.UserMetadata.SellerPhone,
	}, nil
}
