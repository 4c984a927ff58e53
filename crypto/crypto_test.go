package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testKey(b byte) string {
	k := make([]byte, 32)
	for i := range k {
		k[i] = b + byte(i)
	}
	return base64.StdEncoding.EncodeToString(k)
}

func TestNewAESSealer(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		errorMsg string
	}{
		{name: "empty key", key: "", errorMsg: "encryption key is empty"},
		{name: "invalid base64", key: "not-valid-base64!@#$", errorMsg: "base64 decode failed"},
		{name: "key too short", key: base64.StdEncoding.EncodeToString(make([]byte, 16)), errorMsg: "must be 32 bytes"},
		{name: "key too long", key: base64.StdEncoding.EncodeToString(make([]byte, 64)), errorMsg: "must be 32 bytes"},
		{name: "valid 32-byte key", key: testKey(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewAESSealer(tt.key)
			if tt.errorMsg == "" {
				if err != nil || s == nil {
					t.Fatalf("NewAESSealer() = %v, %v", s, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("NewAESSealer() error = %v, want %q", err, tt.errorMsg)
			}
		})
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := NewAESSealer(testKey(7))
	if err != nil {
		t.Fatal(err)
	}
	for _, plain := range []string{"gsk_abc123", "ключ с юникодом", strings.Repeat("x", 4096)} {
		sealed, err := s.Seal(plain, "arbiter:api_key")
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		if !IsSealed(sealed) || strings.Contains(sealed, plain) {
			t.Fatalf("sealed value %q leaks or lacks prefix", sealed[:20])
		}
		got, err := s.Open(sealed, "arbiter:api_key")
		if err != nil || got != plain {
			t.Fatalf("Open = %q, %v", got, err)
		}
	}
}

func TestSealIsRandomized(t *testing.T) {
	s, _ := NewAESSealer(testKey(3))
	a, _ := s.Seal("same", "k")
	b, _ := s.Seal("same", "k")
	if a == b {
		t.Error("two seals of the same plaintext are identical")
	}
}

func TestOpenRejects(t *testing.T) {
	s, _ := NewAESSealer(testKey(9))
	other, _ := NewAESSealer(testKey(10))
	sealed, _ := s.Seal("secret", "arbiter:api_key")

	raw, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, Prefix))
	raw[len(raw)-1] ^= 0xff
	tampered := Prefix + base64.StdEncoding.EncodeToString(raw)

	cases := map[string]struct {
		sealer *AESSealer
		value  string
		aad    string
	}{
		"plaintext":    {s, "secret", "arbiter:api_key"},
		"bad base64":   {s, Prefix + "%%%", "arbiter:api_key"},
		"too short":    {s, Prefix + base64.StdEncoding.EncodeToString([]byte("short")), "arbiter:api_key"},
		"tampered":     {s, tampered, "arbiter:api_key"},
		"wrong key":    {other, sealed, "arbiter:api_key"},
		"moved to key": {s, sealed, "arbiter:model"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := tc.sealer.Open(tc.value, tc.aad); err == nil {
				t.Error("Open succeeded")
			}
		})
	}
	if _, err := s.Open("secret", "k"); !errors.Is(err, ErrNotSealed) {
		t.Errorf("plaintext open error = %v, want ErrNotSealed", err)
	}
}

func TestSealEmpty(t *testing.T) {
	s, _ := NewAESSealer(testKey(2))
	if _, err := s.Seal("", "k"); err == nil {
		t.Error("sealing empty plaintext should fail")
	}
}
