package syncer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// VerifyHCPSignature checks the field-service webhook signature:
// hex(HMAC-SHA256(secret, timestamp + "." + body)). Comparison is
// constant-time.
func VerifyHCPSignature(secret, timestamp string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyQBOSignature checks the Intuit webhook signature:
// base64(HMAC-SHA256(verifierToken, body)).
func VerifyQBOSignature(verifierToken string, body []byte, signature string) bool {
	if verifierToken == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(verifierToken))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
