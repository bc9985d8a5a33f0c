package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// IVSize is the AES block size, used as the CTR initial counter.
const IVSize = aes.BlockSize

// EncryptCTR draws a fresh IV from src (crypto/rand when nil) and encrypts
// plaintext with AES-256-CTR. The ciphertext has the plaintext's length.
func EncryptCTR(src io.Reader, plaintext, key []byte) (iv, ciphertext []byte, err error) {
	if src == nil {
		src = rand.Reader
	}
	iv = make([]byte, IVSize)
	if _, err := io.ReadFull(src, iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}
	ciphertext, err = xorCTR(iv, plaintext, key)
	if err != nil {
		return nil, nil, err
	}
	return iv, ciphertext, nil
}

// DecryptCTR reverses EncryptCTR. A wrong key is not detected.
func DecryptCTR(iv, ciphertext, key []byte) ([]byte, error) {
	return xorCTR(iv, ciphertext, key)
}

func xorCTR(iv, in, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: %d (expected %d bytes)", len(key), KeySize)
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("invalid iv length: %d (expected %d bytes)", len(iv), IVSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(in))
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
	return out, nil
}
