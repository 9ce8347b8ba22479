package routerauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// proofBytes is the digest size of the client proof.
const proofBytes = sha256.Size

// computeProof derives the SCRAM-style client proof for the router's login
// variant:
//
//	authMessage    = clientNonce "," serverNonce "," serverNonce
//	saltedPassword = PBKDF2-HMAC-SHA256(password, salt, iterations, 32)
//	clientKey      = HMAC-SHA256(key="Client Key", msg=saltedPassword)
//	storedKey      = SHA256(clientKey)
//	clientSig      = HMAC-SHA256(key=authMessage, msg=storedKey)
//	proof          = hex(clientKey XOR clientSig)
//
// Two deliberate deviations from RFC 5802, both firmware contract:
// the auth message repeats the server nonce instead of closing with the
// client nonce, and the HMAC key/message arguments at the clientKey and
// clientSig steps are swapped relative to canonical SCRAM. Swapping them
// back produces a different, equally well-formed digest that the device
// rejects with a bare error code. The order is pinned against a proof the
// device actually accepted; see TestComputeProofGoldenVector and
// TestComputeProofOrderDivergence before touching this function.
func computeProof(password, saltHex string, iterations int, clientNonce, serverNonce string) (string, error) {
	if iterations <= 0 {
		return "", &CryptoInputError{Reason: fmt.Sprintf("iteration count %d is not positive", iterations)}
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", &CryptoInputError{Reason: "salt is not valid hex: " + err.Error()}
	}
	if len(salt) == 0 {
		return "", &CryptoInputError{Reason: "salt is empty"}
	}

	authMessage := []byte(clientNonce + "," + serverNonce + "," + serverNonce)

	saltedPassword := pbkdf2.Key([]byte(password), salt, iterations, proofBytes, sha256.New)

	clientKey := hmacSHA256([]byte("Client Key"), saltedPassword)
	storedKey := sha256.Sum256(clientKey)
	clientSignature := hmacSHA256(authMessage, storedKey[:])

	proof := make([]byte, proofBytes)
	for i := range proof {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}
	return hex.EncodeToString(proof), nil
}

func hmacSHA256(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}
