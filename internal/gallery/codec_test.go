package gallery

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestEncodeDocKeyRoundTrips(t *testing.T) {
	inputs := []string{
		"generated:abc123",
		"external:https://example.com/image.png?size=large",
		"generated:7f3e9a00-1c2d-4b5e-8f6a-0d9c8b7a6e5f",
	}
	for _, input := range inputs {
		encoded := EncodeDocKey(input)
		decoded, err := base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			t.Fatalf("encoded key %q is not valid base64url: %v", encoded, err)
		}
		if string(decoded) != input {
			t.Fatalf("round trip mismatch: got %q, want %q", decoded, input)
		}
	}
}

func TestEncodeDocKeyIsDeterministic(t *testing.T) {
	first := EncodeDocKey("generated:doc-1")
	second := EncodeDocKey("generated:doc-1")
	if first != second {
		t.Fatalf("expected identical encodings, got %q and %q", first, second)
	}
}

func TestEncodeDocKeyDistinguishesInputs(t *testing.T) {
	seen := map[string]string{}
	inputs := []string{
		"generated:a",
		"generated:b",
		"external:https://example.com/a",
		"external:https://example.com/b",
	}
	for _, input := range inputs {
		encoded := EncodeDocKey(input)
		if prior, dup := seen[encoded]; dup {
			t.Fatalf("inputs %q and %q collided on %q", prior, input, encoded)
		}
		seen[encoded] = input
	}
}

func TestEncodeDocKeyIsKeySafe(t *testing.T) {
	encoded := EncodeDocKey("external:https://example.com/path?a=1&b=/2")
	if strings.ContainsAny(encoded, "+/= ") {
		t.Fatalf("encoded key %q contains unsafe characters", encoded)
	}
}
