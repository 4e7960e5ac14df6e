package auth

import (
	"bytes"
	"testing"
)

func TestAESCipherRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	c, err := NewAESCipher(key)
	if err != nil {
		t.Fatalf("NewAESCipher: %v", err)
	}

	plaintext := []byte(`{"access_token":"secret"}`)
	sealed, err := c.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("secret")) {
		t.Fatalf("ciphertext contains plaintext")
	}

	opened, err := c.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestAESCipherRejectsBadKey(t *testing.T) {
	if _, err := NewAESCipher("not-hex"); err == nil {
		t.Fatalf("expected error for malformed key")
	}
	if _, err := NewAESCipher("abcd"); err == nil {
		t.Fatalf("expected error for short key")
	}
}

func TestAESCipherRejectsTamperedPayload(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	c, err := NewAESCipher(key)
	if err != nil {
		t.Fatalf("NewAESCipher: %v", err)
	}

	sealed, err := c.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xff

	if _, err := c.Open(sealed); err == nil {
		t.Fatalf("expected error for tampered ciphertext")
	}
}
