// Package collection seals and opens the single-use tokens shown as a QR code
// when a requester picks up rented items.
package collection

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrInvalidToken is returned for any token that cannot be opened or decoded.
var ErrInvalidToken = errors.New("invalid collection token")

var encoding = base64.RawURLEncoding

// Payload is the data bound into a collection token.
type Payload struct {
	OrderID     string `json:"o"`
	RequesterID string `json:"r"`
	VendorID    string `json:"v"`
	IssuedAtMS  int64  `json:"t"`
}

// IssuedAt returns the issue time carried by the payload.
func (p Payload) IssuedAt() time.Time {
	return time.UnixMilli(p.IssuedAtMS).UTC()
}

// Codec seals payloads with XChaCha20-Poly1305 so tokens are opaque and tamper-evident.
type Codec struct {
	key []byte
}

func NewCodec(key []byte) (*Codec, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("collection key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	copied := make([]byte, len(key))
	copy(copied, key)
	return &Codec{key: copied}, nil
}

// Seal encodes the payload into a URL-safe token.
func (c *Codec) Seal(payload Payload) (string, error) {
	if payload.OrderID == "" || payload.RequesterID == "" || payload.VendorID == "" {
		return "", fmt.Errorf("collection payload requires order, requester and vendor ids")
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("init aead: %w", err)
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return encoding.EncodeToString(sealed), nil
}

// Open authenticates and decodes a token. Any failure yields ErrInvalidToken.
func (c *Codec) Open(token string) (Payload, error) {
	raw, err := encoding.DecodeString(token)
	if err != nil {
		return Payload{}, ErrInvalidToken
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return Payload{}, fmt.Errorf("init aead: %w", err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return Payload{}, ErrInvalidToken
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Payload{}, ErrInvalidToken
	}
	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return Payload{}, ErrInvalidToken
	}
	if payload.OrderID == "" || payload.RequesterID == "" || payload.VendorID == "" {
		return Payload{}, ErrInvalidToken
	}
	return payload, nil
}
