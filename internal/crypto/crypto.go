package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"io"
)

// SecureToken creates a new random token of the given byte length (16 by
// default), encoded as unpadded base64url.
func SecureToken(options ...int) string {
	length := 16
	if len(options) > 0 {
		length = options[0]
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(err.Error()) // rand should never fail
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
