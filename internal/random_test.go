package internal

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestAccountTokenRoundTrip(t *testing.T) {
	id := uuid.NewString()
	secret, err := NewTokenSecret()
	if err != nil {
		t.Fatalf("secret: %v", err)
	}

	token, err := EncodeAccountToken(id, secret)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.ContainsAny(token, "+/=") {
		t.Fatalf("token must be url-safe, got %q", token)
	}

	gotID, gotSecret, err := DecodeAccountToken(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotID != id || gotSecret != secret {
		t.Fatalf("round trip mismatch")
	}
	if !TokenHashEqual(HashTokenSecret(secret), HashTokenSecret(gotSecret)) {
		t.Fatalf("hash mismatch")
	}
}

func TestEncodeAccountTokenRejectsNonUUID(t *testing.T) {
	var secret [TokenSecretSize]byte
	if _, err := EncodeAccountToken("not-a-uuid", secret); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeAccountTokenMalformed(t *testing.T) {
	for _, in := range []string{"", "abc", "!!!", strings.Repeat("A", 63), strings.Repeat("A", 65)} {
		if _, _, err := DecodeAccountToken(in); err != ErrMalformedToken {
			t.Fatalf("%q: expected ErrMalformedToken, got %v", in, err)
		}
	}
}

func TestTokenHashEqualEmpty(t *testing.T) {
	if TokenHashEqual("", "") {
		t.Fatalf("empty hashes must never match")
	}
}
