package payos

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// PayOS checksum scheme: HMAC-SHA256 over the signed fields serialized as
// "key=value&key=value" with keys in alphabetical order, hex encoded.

// signCreatePayment computes the signature for a payment-request body.
func signCreatePayment(req *CreatePaymentRequest, checksumKey string) string {
	data := fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		req.Amount,
		req.CancelURL,
		req.Description,
		req.OrderCode,
		req.ReturnURL,
	)
	return hmacHex(data, checksumKey)
}

// signRawData computes the signature over an arbitrary JSON object, the form
// PayOS uses for webhook payloads. Keys are sorted alphabetically, null
// values serialize as the empty string, nested values as compact JSON.
// Returns an error for anything that is not a JSON object: an unverifiable
// payload must never verify.
func signRawData(raw []byte, checksumKey string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return "", fmt.Errorf("signature data is not a JSON object: %w", err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(stringifyValue(fields[k]))
	}

	return hmacHex(buf.String(), checksumKey), nil
}

func stringifyValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func hmacHex(data, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature compares an expected hex signature against the supplied
// one in constant time.
func verifySignature(raw []byte, signature, checksumKey string) bool {
	if signature == "" {
		return false
	}
	expected, err := signRawData(raw, checksumKey)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
