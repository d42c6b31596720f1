package mexc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"p2pcollector/pkg/exchange"
)

// Signer returns an exchange.Signer adding X-MEXC-APIKEY and, for requests
// with a query, X-MEXC-SIGNATURE over the encoded query.
func Signer(apiKey, secret string) exchange.Signer {
	return func(req *http.Request, _ []byte) error {
		req.Header.Set("X-MEXC-APIKEY", apiKey)
		if req.URL.RawQuery != "" {
			req.Header.Set("X-MEXC-SIGNATURE", Sign(secret, req.URL.RawQuery))
		}
		return nil
	}
}

// Sign computes the hex HMAC-SHA256 of the encoded query.
func Sign(secret, rawQuery string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(rawQuery))
	return hex.EncodeToString(mac.Sum(nil))
}
