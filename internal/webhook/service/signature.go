package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/smallbiznis/opensmile/internal/webhook/domain"
)

const signaturePrefix = "sha256="

// Sign returns the X-Hub-Signature-256 header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks header against the HMAC of the raw body in constant time.
// The MAC is computed before the header is inspected, so a missing header
// costs the same as a wrong one.
func Verify(secret, body []byte, header string) error {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	received, decodeErr := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	valid := hmac.Equal(received, expected)

	switch {
	case strings.TrimSpace(header) == "":
		return domain.ErrMissingSignature
	case !strings.HasPrefix(header, signaturePrefix), decodeErr != nil, !valid:
		return domain.ErrInvalidSignature
	}
	return nil
}
