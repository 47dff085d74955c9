package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

// GenerateString returns a random alpha-numeric string of length n.
func GenerateString(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("length must be positive")
	}
	b := make([]rune, n)
	buf := make([]byte, len(b))
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(buf[i])%len(letters)]
	}
	return string(b), nil
}

// DecodeBase64URL decodes the URL-safe base64 used for VAPID and subscription
// keys. Padding is optional and standard-alphabet input is tolerated.
func DecodeBase64URL(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("empty key")
	}
	value = strings.TrimRight(value, "=")
	value = strings.NewReplacer("+", "-", "/", "_").Replace(value)
	return base64.RawURLEncoding.DecodeString(value)
}

// ValidVAPIDPublicKey reports whether key decodes to an uncompressed P-256 point.
func ValidVAPIDPublicKey(key string) bool {
	raw, err := DecodeBase64URL(key)
	return err == nil && len(raw) == 65 && raw[0] == 0x04
}
