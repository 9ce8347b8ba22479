package routerauth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// nonceBytes is the number of random bytes in a client nonce. The firmware
// expects the hex form, 64 characters.
const nonceBytes = 32

// newNonce returns a fresh client nonce from the system CSPRNG. The nonce is
// the replay barrier for the whole handshake, so crypto/rand is mandatory
// here; a predictable source would let a captured exchange be replayed.
func newNonce() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("routerauth: generate client nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
