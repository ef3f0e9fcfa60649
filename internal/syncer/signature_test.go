package syncer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func hcpSign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func qboSign(verifier string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(verifier))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyHCPSignature(t *testing.T) {
	secret := "wh-secret"
	timestamp := "1756700000"
	body := []byte(`{"event":"job.completed"}`)

	assert.True(t, VerifyHCPSignature(secret, timestamp, body, hcpSign(secret, timestamp, body)))

	// Any changed input invalidates the signature.
	assert.False(t, VerifyHCPSignature(secret, timestamp, body, hcpSign("other", timestamp, body)))
	assert.False(t, VerifyHCPSignature(secret, "1756700001", body, hcpSign(secret, timestamp, body)))
	assert.False(t, VerifyHCPSignature(secret, timestamp, []byte("tampered"), hcpSign(secret, timestamp, body)))

	// Empty secret or signature never verifies.
	assert.False(t, VerifyHCPSignature("", timestamp, body, hcpSign(secret, timestamp, body)))
	assert.False(t, VerifyHCPSignature(secret, timestamp, body, ""))
}

func TestVerifyQBOSignature(t *testing.T) {
	verifier := "intuit-verifier"
	body := []byte(`{"eventNotifications":[]}`)

	assert.True(t, VerifyQBOSignature(verifier, body, qboSign(verifier, body)))
	assert.False(t, VerifyQBOSignature(verifier, body, qboSign("other", body)))
	assert.False(t, VerifyQBOSignature(verifier, []byte("tampered"), qboSign(verifier, body)))
	assert.False(t, VerifyQBOSignature("", body, qboSign(verifier, body)))
	assert.False(t, VerifyQBOSignature(verifier, body, ""))
}
