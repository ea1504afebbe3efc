package visitors

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// DistinctID derives the privacy-preserving device identifier for a site.
// The raw IP is only ever used as hash input. The same site, IP and user
// agent always yield the same value; rotating either breaks continuity.
func DistinctID(secret string, siteID uint, ipAddress, userAgent string) string {
	return keyedHash(secret, strconv.FormatUint(uint64(siteID), 10)+":"+ipAddress+"|"+userAgent)
}

// HashIP returns the keyed hash of an IP address, used for rate-limit buckets.
func HashIP(secret, ipAddress string) string {
	return keyedHash(secret, "ip:"+ipAddress)
}

// HashToken returns the keyed hash stored in place of a bearer or CSRF token.
func HashToken(secret, token string) string {
	return keyedHash(secret, "token:"+token)
}

func keyedHash(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
