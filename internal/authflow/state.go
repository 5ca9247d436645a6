package authflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// State decoding errors.
var (
	ErrInvalidState = errors.New("invalid state parameter")
	ErrStateExpired = errors.New("state parameter expired")
)

// StateCodec signs and verifies the OAuth state parameter. The state
// round-trips the correlation token and user identity through the
// provider, so the callback can re-correlate without server-side browser
// sessions; the HMAC signature keeps a third party from forging a state
// that writes credentials under someone else's identity.
type StateCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewStateCodec creates a codec signing with secret. Encoded states
// expire after ttl, which should match the pending-authorization TTL.
func NewStateCodec(secret string, ttl time.Duration) *StateCodec {
	return &StateCodec{secret: []byte(secret), ttl: ttl}
}

// Encode signs {userID, correlationToken} into a state value.
func (c *StateCodec) Encode(userID, correlationToken string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"cor": correlationToken,
		"iat": now.Unix(),
		"exp": now.Add(c.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// Decode verifies a state value and recovers the user identity and
// correlation token it carries.
func (c *StateCodec) Decode(state string) (userID, correlationToken string, err error) {
	token, err := jwt.Parse(state, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrStateExpired
		}
		return "", "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrInvalidState
	}

	userID, ok = claims["sub"].(string)
	if !ok || userID == "" {
		return "", "", fmt.Errorf("%w: missing sub claim", ErrInvalidState)
	}
	correlationToken, ok = claims["cor"].(string)
	if !ok || correlationToken == "" {
		return "", "", fmt.Errorf("%w: missing cor claim", ErrInvalidState)
	}

	return userID, correlationToken, nil
}
