package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Decrypt recovers the signer's secp256k1 private key from an
// AES-256-GCM encrypted, hex-encoded blob, using key as the symmetric
// key. The encrypted-at-rest key never touches disk or config in
// plaintext; only the decrypted ecdsa.PrivateKey lives in process
// memory for the life of the run.
func Decrypt(key []byte, encryptedHex string) (*ecdsa.PrivateKey, error) {
	ciphertext, err := hex.DecodeString(encryptedHex)
	if err != nil {
		return nil, fmt.Errorf("decrypt: decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("decrypt: new cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("decrypt: new gcm: %w", err)
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("decrypt: ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: open: %w", err)
	}

	pk, err := crypto.ToECDSA(plaintext)
	if err != nil {
		return nil, fmt.Errorf("decrypt: parse private key: %w", err)
	}
	return pk, nil
}
