// Package signature authenticates traffic from the payment gateway and the
// game provider. The gateway webhook scheme and the activation handshake are
// deliberately separate functions: the two protocols version independently.
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SignField is never part of the signed payload.
const SignField = "sign"

// GatewaySign computes the webhook signature: drop the sign field and nil
// values, sort keys, join key=value with '&', append &timestamp=<ts>, then
// HMAC-SHA256 with the shared secret, hex encoded.
func GatewaySign(params map[string]any, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonicalGateway(params, timestamp)))

	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyGateway compares in constant time.
func VerifyGateway(params map[string]any, timestamp, sign, secret string) bool {
	if sign == "" || secret == "" {
		return false
	}

	expected := GatewaySign(params, timestamp, secret)

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sign)))
}

func canonicalGateway(params map[string]any, timestamp string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == SignField || v == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(formatValue(params[k]))
	}

	b.WriteString("&timestamp=")
	b.WriteString(timestamp)

	return b.String()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case map[string]any, []any:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(t); err != nil {
			return fmt.Sprint(t)
		}
		return strings.TrimRight(buf.String(), "\n")
	default:
		return fmt.Sprint(t)
	}
}

// DecodeParams parses a JSON object keeping numbers verbatim so they sign
// exactly as the gateway rendered them.
func DecodeParams(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var params map[string]any
	err := dec.Decode(&params)
	if err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}

	return params, nil
}
