package growatt

import (
	"crypto/md5"
	"encoding/hex"
)

// HashPassword returns the digest Growatt expects in place of the plaintext
// password: MD5, hex-encoded, lowercase, always 32 characters.
func HashPassword(password string) string {
	hash := md5.Sum([]byte(password))
	return hex.EncodeToString(hash[:])
}
