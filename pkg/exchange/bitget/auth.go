package bitget

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"p2pcollector/pkg/exchange"
)

// Signer returns an exchange.Signer adding the ACCESS-* headers. The
// prehash string is timestamp + METHOD + path [+ "?" + query] + body.
func Signer(apiKey, secret, passphrase string, now func() time.Time) exchange.Signer {
	if now == nil {
		now = time.Now
	}
	return func(req *http.Request, body []byte) error {
		ts := strconv.FormatInt(now().UnixMilli(), 10)
		req.Header.Set("ACCESS-KEY", apiKey)
		req.Header.Set("ACCESS-SIGN", Sign(secret, ts, req.Method, req.URL.Path, req.URL.RawQuery, body))
		req.Header.Set("ACCESS-TIMESTAMP", ts)
		req.Header.Set("ACCESS-PASSPHRASE", passphrase)
		req.Header.Set("locale", "en-US")
		return nil
	}
}

// Sign computes the base64 HMAC-SHA256 request signature.
func Sign(secret, timestamp, method, path, rawQuery string, body []byte) string {
	msg := timestamp + method + path
	if rawQuery != "" {
		msg += "?" + rawQuery
	}
	msg += string(body)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
