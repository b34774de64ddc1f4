package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign computes the callback signature for an order/payment reference pair
func Sign(secret, orderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a callback signature in constant time
func (c *Client) VerifySignature(orderRef, paymentRef, signature string) bool {
	if c.cfg.KeySecret == "" || signature == "" {
		return false
	}
	expected := Sign(c.cfg.KeySecret, orderRef, paymentRef)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
