package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func encryptForTest(t *testing.T, key []byte, plaintext []byte) string {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("new gcm: %v", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		t.Fatalf("read nonce: %v", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return hex.EncodeToString(sealed)
}

func TestDecryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	encryptedHex := encryptForTest(t, key, crypto.FromECDSA(pk))

	got, err := Decrypt(key, encryptedHex)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got.X.Cmp(pk.X) != 0 || got.Y.Cmp(pk.Y) != 0 {
		t.Error("Decrypt() returned a different key than was encrypted")
	}
}

func TestDecryptBadCiphertext(t *testing.T) {
	key := make([]byte, 32)
	if _, err := Decrypt(key, "not-hex!"); err == nil {
		t.Error("expected error for malformed hex")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key := make([]byte, 32)
	pk, _ := crypto.GenerateKey()
	encryptedHex := encryptForTest(t, key, crypto.FromECDSA(pk))

	wrongKey := make([]byte, 32)
	wrongKey[0] = 1
	if _, err := Decrypt(wrongKey, encryptedHex); err == nil {
		t.Error("expected error decrypting with wrong key")
	}
}
