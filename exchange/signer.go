package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer produces HMAC-SHA256 request signatures for one credential pair.
type Signer struct {
	apiKey    []byte
	secretKey []byte
}

// NewSigner creates a signer bound to the given API key and secret.
func NewSigner(apiKey, secretKey string) *Signer {
	return &Signer{
		apiKey:    []byte(apiKey),
		secretKey: []byte(secretKey),
	}
}

// HasCredentials reports whether both halves of the key pair are present.
func (s *Signer) HasCredentials() bool {
	return s != nil && len(s.apiKey) > 0 && len(s.secretKey) > 0
}

// APIKey returns the key sent in the X-MBX-APIKEY header.
func (s *Signer) APIKey() string {
	return string(s.apiKey)
}

// Sign returns the lowercase hex HMAC-SHA256 of payload keyed by the secret.
func (s *Signer) Sign(payload string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Wipe zeroes the key material held in memory.
func (s *Signer) Wipe() {
	for i := range s.apiKey {
		s.apiKey[i] = 0
	}
	for i := range s.secretKey {
		s.secretKey[i] = 0
	}
	s.apiKey = nil
	s.secretKey = nil
}
