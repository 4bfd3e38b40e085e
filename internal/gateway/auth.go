package gateway

import (
	"context"
	"errors"
	"fmt"

	"workphone-gateway/internal/domain"
	"workphone-gateway/pkg/jwt"

	"github.com/gorilla/websocket"
)

var (
	ErrMissingCredential  = errors.New("missing credential")
	ErrInvalidCredential  = errors.New("invalid credential")
	ErrDeviceNotBound     = errors.New("device not bound")
	ErrBindingUnavailable = errors.New("binding lookup failed")
)

// TokenVerifier checks a device token and returns the claimed pair.
type TokenVerifier interface {
	VerifyDeviceToken(token string) (deviceID, userID string, err error)
}

// BindingLookup reports whether deviceID is currently bound to userID and
// resolves the user's display name.
type BindingLookup interface {
	LookupBinding(ctx context.Context, deviceID, userID string) (*domain.DeviceBinding, error)
}

type JWTVerifier struct {
	secret string
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

func (v *JWTVerifier) VerifyDeviceToken(token string) (string, string, error) {
	claims, err := jwt.ValidateDeviceToken(token, v.secret)
	if err != nil {
		return "", "", err
	}
	return claims.DeviceID, claims.UserID, nil
}

type Authenticator struct {
	verifier TokenVerifier
	bindings BindingLookup
}

func NewAuthenticator(verifier TokenVerifier, bindings BindingLookup) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		bindings: bindings,
	}
}

// Authenticate resolves token into an identity. Every failure is a
// rejection; there is no degraded identity.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}

	deviceID, userID, err := a.verifier.VerifyDeviceToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if deviceID == "" || userID == "" {
		return nil, fmt.Errorf("%w: missing deviceId or userId", ErrInvalidCredential)
	}

	binding, err := a.bindings.LookupBinding(ctx, deviceID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBindingUnavailable, err)
	}
	if binding == nil || !binding.Active {
		return nil, fmt.Errorf("%w: device %s for user %s", ErrDeviceNotBound, deviceID, userID)
	}

	name := binding.DisplayName
	if name == "" {
		name = userID
	}

	return &Identity{
		DeviceID:    deviceID,
		UserID:      userID,
		DisplayName: name,
	}, nil
}

// CloseCodeFor maps an authentication error to the close code sent to the
// device.
func CloseCodeFor(err error) int {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return CloseMissingCredential
	case errors.Is(err, ErrInvalidCredential):
		return CloseInvalidCredential
	case errors.Is(err, ErrDeviceNotBound):
		return CloseDeviceNotBound
	default:
		return websocket.CloseInternalServerErr
	}
}

func authFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, ErrDeviceNotBound):
		return "device_not_bound"
	default:
		return "lookup_failed"
	}
}
