package cryptoutil

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// ===================================================================================================
// Rot13
// ===================================================================================================

func TestRot13(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "hello", "uryyb"},
		{"uppercase", "HELLO", "URYYB"},
		{"wraps", "xyzXYZ", "klmKLM"},
		{"non letters untouched", "123 _-=+/{}", "123 _-=+/{}"},
		{"mixed", "eyJlbiI6ImEifQ==", "rlWyovV6VzRvsD=="},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Rot13(tt.in); got != tt.want {
				t.Errorf("Rot13(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRot13_SelfInverse(t *testing.T) {
	inputs := []string{
		"The Quick Brown Fox Jumps Over The Lazy Dog",
		"sha512-abcDEF0123456789+/=",
		"ünïcödé stays ünïcödé",
		"{\"en\":\"x\",\"iv\":\"y\"}",
	}
	for _, in := range inputs {
		if got := Rot13(Rot13(in)); got != in {
			t.Errorf("Rot13(Rot13(%q)) = %q", in, got)
		}
	}
}

func TestRot13_NonLettersUnchanged(t *testing.T) {
	in := "0123456789 !@#$%^&*()[]ü"
	out := Rot13(in)
	if out != in {
		t.Errorf("Rot13 changed non-letters: %q -> %q", in, out)
	}
}

// ===================================================================================================
// Signed tokens
// ===================================================================================================

func TestSignVerify_RoundTrip(t *testing.T) {
	token, err := SignToken("user42", 1700000000, "streams", "s3cret")
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}
	if !strings.HasPrefix(token, "user42.1700000000.streams.") {
		t.Fatalf("unexpected token layout: %s", token)
	}

	claims, err := VerifyToken(token, "s3cret")
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims == nil {
		t.Fatal("VerifyToken() returned invalid for a fresh token")
	}
	want := TokenClaims{Data: "user42", ExpirationTime: 1700000000, Label: "streams"}
	if *claims != want {
		t.Errorf("claims = %+v, want %+v", *claims, want)
	}
}

func TestVerifyToken_SignatureMutation(t *testing.T) {
	token, _ := SignToken("data", 99, "label", "key")
	idx := strings.LastIndex(token, ".") + 1

	for i := idx; i < len(token); i++ {
		b := []byte(token)
		if b[i] == 'a' {
			b[i] = 'b'
		} else {
			b[i] = 'a'
		}
		claims, err := VerifyToken(string(b), "key")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if claims != nil {
			t.Fatalf("mutated signature at %d verified", i)
		}
	}
}

func TestVerifyToken_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"too few fields", "a.b.c"},
		{"too many fields", "a.1.c.d.e"},
		{"empty data", ".1.c.d"},
		{"empty signature", "a.1.c."},
		{"wrong secret", mustSign(t, "a", 1, "c", "other")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := VerifyToken(tt.token, "key")
			if err != nil {
				t.Fatalf("VerifyToken() error = %v", err)
			}
			if claims != nil {
				t.Errorf("VerifyToken(%q) = %+v, want invalid", tt.token, claims)
			}
		})
	}
}

func TestMissingSecret(t *testing.T) {
	if _, err := SignToken("a", 1, "b", ""); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("SignToken() error = %v, want ErrMissingSecret", err)
	}
	if _, err := VerifyToken("a.1.b.c", ""); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("VerifyToken() error = %v, want ErrMissingSecret", err)
	}
}

func TestVerifyFreshToken(t *testing.T) {
	now := time.Unix(1_000_000, 0)

	fresh := mustSign(t, "a", now.Add(time.Minute).Unix(), "l", "key")
	if claims, err := VerifyFreshToken(fresh, "key", now); err != nil || claims == nil {
		t.Fatalf("fresh token rejected: claims=%v err=%v", claims, err)
	}

	stale := mustSign(t, "a", now.Add(-time.Second).Unix(), "l", "key")
	if _, err := VerifyFreshToken(stale, "key", now); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("stale token error = %v, want ErrTokenExpired", err)
	}

	// VerifyToken itself ignores expiry.
	if claims, _ := VerifyToken(stale, "key"); claims == nil {
		t.Error("VerifyToken() should not check expiry")
	}
}

func TestLooksLikeToken(t *testing.T) {
	if !LooksLikeToken("a.1.b.c") {
		t.Error("four fields should look like a token")
	}
	if LooksLikeToken("plain-api-key") {
		t.Error("plain key should not look like a token")
	}
}

func mustSign(t *testing.T, data string, exp int64, label, secret string) string {
	t.Helper()
	tok, err := SignToken(data, exp, label, secret)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}
