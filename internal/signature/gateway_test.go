package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalGateway_SortsAndSkips(t *testing.T) {
	t.Parallel()

	params, err := DecodeParams([]byte(`{
		"status":"paid",
		"order_id":"DEP-1700000000-7",
		"amount":12.50,
		"sign":"deadbeef",
		"memo":null,
		"extra":{"b":1,"a":"x"}
	}`))
	require.NoError(t, err)

	got := canonicalGateway(params, "1700000001")
	assert.Equal(t,
		`amount=12.50&extra={"a":"x","b":1}&order_id=DEP-1700000000-7&status=paid&timestamp=1700000001`,
		got)
}

func TestVerifyGateway(t *testing.T) {
	t.Parallel()

	params := map[string]any{"order_id": "WD-1-1", "status": "success"}
	sign := GatewaySign(params, "42", "secret")

	tests := []struct {
		name   string
		ts     string
		sign   string
		secret string
		want   bool
	}{
		{"valid", "42", sign, "secret", true},
		{"uppercase hex", "42", toUpper(sign), "secret", true},
		{"wrong timestamp", "43", sign, "secret", false},
		{"wrong secret", "42", sign, "other", false},
		{"empty sign", "42", "", "secret", false},
		{"empty secret", "42", sign, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, VerifyGateway(params, tt.ts, tt.sign, tt.secret))
		})
	}
}

func TestVerifyGateway_SignFieldIgnored(t *testing.T) {
	t.Parallel()

	params := map[string]any{"order_id": "WD-1-1"}
	sign := GatewaySign(params, "1", "s")

	params[SignField] = sign
	assert.True(t, VerifyGateway(params, "1", sign, "s"))
}

func TestDecodeParams_Invalid(t *testing.T) {
	t.Parallel()

	_, err := DecodeParams([]byte(`not json`))
	require.Error(t, err)
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}

	return string(b)
}
