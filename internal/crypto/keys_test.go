package crypto

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestGenerateString(t *testing.T) {
	s, err := GenerateString(32)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(s) != 32 {
		t.Fatalf("expected 32 characters, got %d", len(s))
	}
	if _, err := GenerateString(0); err == nil {
		t.Fatalf("expected error for zero length")
	}
}

func TestDecodeBase64URL(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0x01, 0x02, 0x03}
	for name, encoded := range map[string]string{
		"raw url":  base64.RawURLEncoding.EncodeToString(raw),
		"padded":   base64.URLEncoding.EncodeToString(raw),
		"standard": base64.StdEncoding.EncodeToString(raw),
	} {
		got, err := DecodeBase64URL(encoded)
		if err != nil {
			t.Fatalf("%s: decode %q: %v", name, encoded, err)
		}
		if !bytes.Equal(got, raw) {
			t.Fatalf("%s: got %x want %x", name, got, raw)
		}
	}
	if _, err := DecodeBase64URL(""); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestValidVAPIDPublicKey(t *testing.T) {
	point := make([]byte, 65)
	point[0] = 0x04
	if !ValidVAPIDPublicKey(base64.RawURLEncoding.EncodeToString(point)) {
		t.Fatalf("expected uncompressed point to be valid")
	}
	if ValidVAPIDPublicKey(base64.RawURLEncoding.EncodeToString(point[:33])) {
		t.Fatalf("expected short key to be invalid")
	}
	if ValidVAPIDPublicKey("not base64!") {
		t.Fatalf("expected garbage to be invalid")
	}
}
