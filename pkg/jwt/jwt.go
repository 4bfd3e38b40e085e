package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	tokenTypeDevice  = "device"
)

var ErrMissingClaims = errors.New("token is missing required claims")

type Claims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
	jwtlib.RegisteredClaims
}

func (c *Claims) IsAccess() bool  { return c.TokenType == tokenTypeAccess }
func (c *Claims) IsRefresh() bool { return c.TokenType == tokenTypeRefresh }

// DeviceClaims are carried by the token a work phone presents when it opens
// the gateway channel.
type DeviceClaims struct {
	DeviceID  string `json:"deviceId"`
	UserID    string `json:"userId"`
	TokenType string `json:"token_type"`
	jwtlib.RegisteredClaims
}

func GenerateToken(userID string, expiration time.Duration, secret string) (string, error) {
	return generate(userID, tokenTypeAccess, expiration, secret)
}

func GenerateRefreshToken(userID string, expiration time.Duration, secret string) (string, error) {
	return generate(userID, tokenTypeRefresh, expiration, secret)
}

func generate(userID, tokenType string, expiration time.Duration, secret string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(expiration)),
		},
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func ValidateToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	if err := parse(tokenString, secret, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrMissingClaims
	}
	return claims, nil
}

func GenerateDeviceToken(deviceID, userID string, expiration time.Duration, secret string) (string, error) {
	now := time.Now()
	claims := &DeviceClaims{
		DeviceID:  deviceID,
		UserID:    userID,
		TokenType: tokenTypeDevice,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   deviceID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(expiration)),
		},
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign device token: %w", err)
	}
	return signed, nil
}

// ValidateDeviceToken verifies signature and expiry and requires both the
// deviceId and userId claims.
func ValidateDeviceToken(tokenString, secret string) (*DeviceClaims, error) {
	claims := &DeviceClaims{}
	if err := parse(tokenString, secret, claims); err != nil {
		return nil, err
	}
	if claims.DeviceID == "" || claims.UserID == "" {
		return nil, ErrMissingClaims
	}
	return claims, nil
}

func parse(tokenString, secret string, claims jwtlib.Claims) error {
	token, err := jwtlib.ParseWithClaims(tokenString, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwtlib.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}
