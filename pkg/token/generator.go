package token

import (
	"crypto/rand"
	"encoding/base64"
)

// DefaultLength is the default number of random bytes in a credential body.
const DefaultLength = 32

// Generate returns a prefixed credential with DefaultLength bytes of entropy.
func Generate(prefix string) (string, error) {
	body, err := GenerateWithLength(DefaultLength)
	if err != nil {
		return "", err
	}
	return prefix + body, nil
}

// GenerateWithLength returns length random bytes, Base64 RawURL encoded.
func GenerateWithLength(length int) (string, error) {
	b, err := GenerateBytes(length)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateBytes generates random bytes.
func GenerateBytes(length int) ([]byte, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
