package cryptoutil

import (
	"io"

	"github.com/minio/sio"
)

// SealWriter returns a streaming encrypting writer using DARE (sio).
// Used for remote copies only; it authenticates what it wraps.
func SealWriter(w io.Writer, key []byte) (io.WriteCloser, error) {
	return sio.EncryptWriter(w, sio.Config{Key: key})
}

// OpenReader returns a streaming decrypting reader using DARE (sio).
func OpenReader(r io.Reader, key []byte) (io.Reader, error) {
	return sio.DecryptReader(r, sio.Config{Key: key})
}
