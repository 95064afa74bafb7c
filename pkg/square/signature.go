package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// SignConfirmation computes the HMAC-SHA256 signature the hosted payment UI
// attaches to its success callback. The signed message binds the gateway
// payment to our order reference so one cannot be replayed against another.
func SignConfirmation(secret, orderRef, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s|%s", orderRef, gatewayPaymentID)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyConfirmation checks a callback signature in constant time.
func VerifyConfirmation(secret, orderRef, gatewayPaymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := SignConfirmation(secret, orderRef, gatewayPaymentID)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
