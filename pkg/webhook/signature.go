package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// verifySignature checks the X-Hub-Signature-256 header of a delivery
// against the app secret. The comparison is timing-safe.
func verifySignature(body []byte, header, secret string) bool {
	if header == "" {
		return false
	}

	expected := computeSignature(body, secret)
	return subtle.ConstantTimeCompare([]byte(header), []byte(expected)) == 1
}

// computeSignature computes the sha256= signature for a payload.
func computeSignature(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(h.Sum(nil)))
}
