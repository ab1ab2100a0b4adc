package podindex

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
)

// Signature computes the request authorization token: the lowercase-hex
// SHA-1 of key, secret and the Unix timestamp (seconds) concatenated in that
// order. The server recomputes the same hash within its clock-skew window.
func Signature(key, secret string, unixSeconds int64) string {
	sum := sha1.Sum([]byte(key + secret + strconv.FormatInt(unixSeconds, 10)))
	return hex.EncodeToString(sum[:])
}
