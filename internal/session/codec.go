// Package session turns a user's progress into a signed, self-contained
// token and back.
//
// A token is base64url(payload) + ":" + base64url(HMAC-SHA256(key, payload)),
// both parts unpadded. The payload is authenticated, not encrypted: clients
// can read it, so nothing secret may be stored in a UserState.
package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"quiz-rewards-api/internal/models"
)

// KeySize is the length in bytes of the HMAC key.
const KeySize = sha256.Size

// AuthScheme prefixes the token in the Authorization header.
const AuthScheme = "userstate"

var tokenEncoding = base64.RawURLEncoding.Strict()

// Codec signs and verifies tokens with a key fixed at construction.
// Rotating the key means building a new Codec; every token signed with
// the old key stops verifying.
type Codec struct {
	key []byte
}

// NewCodec returns a Codec using a private copy of key.
func NewCodec(key []byte) *Codec {
	return &Codec{key: append([]byte(nil), key...)}
}

// Encode serializes and signs state.
func (c *Codec) Encode(state models.UserState) (string, error) {
	payload := marshalState(state)
	tag := c.sign(payload)

	return tokenEncoding.EncodeToString(payload) + ":" + tokenEncoding.EncodeToString(tag), nil
}

// Decode verifies token and rebuilds the state it carries. Every failure
// wraps ErrUnauthorized.
func (c *Codec) Decode(token string) (models.UserState, error) {
	// the decoder skips CR/LF, which would let two strings map to one payload
	if strings.ContainsAny(token, "\r\n") {
		return models.UserState{}, ErrMalformed
	}

	encodedPayload, encodedTag, ok := strings.Cut(token, ":")
	if !ok || encodedPayload == "" || encodedTag == "" {
		return models.UserState{}, ErrMalformed
	}

	payload, err := tokenEncoding.DecodeString(encodedPayload)
	if err != nil {
		return models.UserState{}, ErrMalformed
	}
	tag, err := tokenEncoding.DecodeString(encodedTag)
	if err != nil {
		return models.UserState{}, ErrMalformed
	}

	if !hmac.Equal(tag, c.sign(payload)) {
		return models.UserState{}, ErrInvalidSignature
	}

	return unmarshalState(payload)
}

func (c *Codec) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(payload)
	return mac.Sum(nil)
}

// ParseAuthorization extracts the token from an Authorization header value.
// An empty header yields ok == false: the caller should start a new session.
func ParseAuthorization(header string) (token string, ok bool, err error) {
	if header == "" {
		return "", false, nil
	}

	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, AuthScheme) {
		return "", false, ErrMalformed
	}

	return value, true, nil
}

// LoadKey decodes a hex key that must be exactly KeySize bytes.
func LoadKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}
	return key, nil
}

// GenerateKey returns a fresh random key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// NewUserID returns a fresh random session id.
func NewUserID() (models.UserID, error) {
	var id models.UserID
	if _, err := rand.Read(id[:]); err != nil {
		return models.UserID{}, err
	}
	return id, nil
}
