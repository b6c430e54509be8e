// Package cryptoutil holds the small reversible transforms used by the site
// adapters and the signed access tokens accepted by the API.
package cryptoutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMissingSecret is returned when a token operation runs without a secret key.
var ErrMissingSecret = errors.New("secret key is required to sign or verify tokens")

// ErrTokenExpired is returned by VerifyFreshToken for a correctly signed but stale token.
var ErrTokenExpired = errors.New("token expired")

// Rot13 rotates ASCII letters by 13 places within their case. Everything else
// is left untouched, so Rot13(Rot13(s)) == s.
func Rot13(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'A' && c <= 'Z':
			b[i] = 'A' + (c-'A'+13)%26
		case c >= 'a' && c <= 'z':
			b[i] = 'a' + (c-'a'+13)%26
		}
	}
	return string(b)
}

// TokenClaims are the fields carried by a signed token.
type TokenClaims struct {
	Data           string `json:"data"`
	ExpirationTime int64  `json:"expirationTime"`
	Label          string `json:"label"`
}

// Expired reports whether the token's expiry (unix seconds) is at or before now.
func (c *TokenClaims) Expired(now time.Time) bool {
	return c.ExpirationTime <= now.Unix()
}

// SignToken returns "data.expiry.label.signature" where signature is the hex
// HMAC-SHA256 of "data:expiry:label" under secret.
func SignToken(data string, expiry int64, label, secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	exp := strconv.FormatInt(expiry, 10)
	return strings.Join([]string{data, exp, label, sign(data, exp, label, secret)}, "."), nil
}

// VerifyToken checks a token produced by SignToken. A nil result with a nil
// error means the token is malformed or the signature does not match.
// Expiry is not checked here; see VerifyFreshToken.
func VerifyToken(token, secret string) (*TokenClaims, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return nil, nil
	}
	data, exp, label, signature := parts[0], parts[1], parts[2], parts[3]
	if data == "" || exp == "" || label == "" || signature == "" {
		return nil, nil
	}

	expected := sign(data, exp, label, secret)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil, nil
	}

	expiry, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return nil, nil
	}

	return &TokenClaims{Data: data, ExpirationTime: expiry, Label: label}, nil
}

// VerifyFreshToken is VerifyToken plus an expiry check against now.
func VerifyFreshToken(token, secret string, now time.Time) (*TokenClaims, error) {
	claims, err := VerifyToken(token, secret)
	if err != nil || claims == nil {
		return claims, err
	}
	if claims.Expired(now) {
		return nil, fmt.Errorf("%w: label %q", ErrTokenExpired, claims.Label)
	}
	return claims, nil
}

// LooksLikeToken reports whether s has the four dot-separated fields of a signed token.
func LooksLikeToken(s string) bool {
	return strings.Count(s, ".") == 3
}

func sign(data, exp, label, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data + ":" + exp + ":" + label))
	return hex.EncodeToString(mac.Sum(nil))
}
