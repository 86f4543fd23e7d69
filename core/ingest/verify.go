package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

const SignaturePrefix = "sha256="

// Sign returns the signature header value for body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return SignaturePrefix + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether presented is the signature of body under secret.
func Verify(body []byte, presented, secret string) bool {
	if secret == "" || presented == "" {
		return false
	}
	expected := Sign(body, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
