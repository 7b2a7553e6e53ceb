package kernel

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"
)

func Sha512(data string) string {
	return fmt.Sprintf("%032x", sha512.Sum512([]byte(data)))
}

// HmacSha256 returns the lowercase hex HMAC-SHA256 of body.
func HmacSha256(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHmacSha256 compares a hex signature, optionally prefixed with
// "sha256=", against the HMAC of body in constant time.
func VerifyHmacSha256(secret string, body []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
