package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ActivationSign signs the one-time webhook activation handshake:
// HMAC-SHA256(appId + timestamp + body) with the app secret, where body is
// the JSON document exactly as received.
func ActivationSign(appID, timestamp string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(appID))
	mac.Write([]byte(timestamp))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}

func VerifyActivation(appID, timestamp string, body []byte, sign, secret string) bool {
	if sign == "" || secret == "" {
		return false
	}

	expected := ActivationSign(appID, timestamp, body, secret)

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sign)))
}
