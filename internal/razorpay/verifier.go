package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Verifier checks gateway signatures. The zero value rejects everything.
type Verifier struct {
	keySecret     []byte
	webhookSecret []byte
}

// NewVerifier returns a Verifier. An empty webhookSecret falls back to
// keySecret, matching dashboards where no separate webhook secret is set.
func NewVerifier(keySecret, webhookSecret string) *Verifier {
	if webhookSecret == "" {
		webhookSecret = keySecret
	}
	return &Verifier{keySecret: []byte(keySecret), webhookSecret: []byte(webhookSecret)}
}

// VerifyPayment reports whether signature is the lowercase hex HMAC-SHA256 of
// "<orderID>|<paymentID>" under the key secret.
func (v *Verifier) VerifyPayment(orderID, paymentID, signature string) bool {
	if v == nil {
		return false
	}
	return verify(v.keySecret, []byte(orderID+"|"+paymentID), signature)
}

// VerifyWebhook reports whether signature is the lowercase hex HMAC-SHA256 of the raw
// request body under the webhook secret.
func (v *Verifier) VerifyWebhook(body []byte, signature string) bool {
	if v == nil {
		return false
	}
	return verify(v.webhookSecret, body, signature)
}

func verify(secret, message []byte, signature string) bool {
	if len(secret) == 0 {
		return false
	}
	want := hex.EncodeToString(sign(secret, message))
	return hmac.Equal([]byte(signature), []byte(want))
}

func sign(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}

// Sign returns the hex signature the gateway would send for message.
// Used by tests and local tooling.
func Sign(secret string, message []byte) string {
	return hex.EncodeToString(sign([]byte(secret), message))
}
