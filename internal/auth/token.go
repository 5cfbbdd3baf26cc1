package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"collab-backend/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// RoomClaims binds a token to one room and one identity. The display
// fields travel in the token so the websocket edge never needs a user
// lookup to admit a connection.
type RoomClaims struct {
	RoomKey     string     `json:"roomKey"`
	DisplayName string     `json:"displayName"`
	AvatarRef   string     `json:"avatarRef,omitempty"`
	Role        model.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates room join tokens.
type TokenManager struct {
	secretKey []byte
	expiry    time.Duration
}

func NewTokenManager(secretKey string, expiry time.Duration) *TokenManager {
	return &TokenManager{
		secretKey: []byte(secretKey),
		expiry:    expiry,
	}
}

// Issue creates a join token for one room.
func (m *TokenManager) Issue(roomKey, displayName, avatarRef string, role model.Role) (string, error) {
	now := time.Now()
	claims := &RoomClaims{
		RoomKey:     roomKey,
		DisplayName: displayName,
		AvatarRef:   avatarRef,
		Role:        role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "collab-api",
			Subject:   displayName,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Validate parses a join token and checks it admits the given room.
func (m *TokenManager) Validate(tokenString, roomKey string) (*RoomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RoomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*RoomClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.RoomKey != roomKey {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
