// Package artifact defines the on-disk form of an encrypted .env file:
// hex(iv) ":" hex(ciphertext). The format carries no integrity tag, so a
// wrong password or a tampered ciphertext opens into garbage without error.
package artifact

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rowjay/dotenvenc/internal/cryptoutil"
)

const separator = ":"

// ErrInvalidFormat is matched by every FormatError.
var ErrInvalidFormat = errors.New("invalid encrypted file format")

// FormatError reports encrypted text that does not parse as iv:ciphertext.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrInvalidFormat, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidFormat, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func (e *FormatError) Is(target error) bool {
	return target == ErrInvalidFormat
}

// Artifact is an IV bound to the ciphertext it seeded.
type Artifact struct {
	IV         []byte
	Ciphertext []byte
}

// Marshal renders the artifact as lowercase hex(iv):hex(ciphertext).
func (a Artifact) Marshal() []byte {
	out := make([]byte, 0, hex.EncodedLen(len(a.IV))+1+hex.EncodedLen(len(a.Ciphertext)))
	out = hex.AppendEncode(out, a.IV)
	out = append(out, separator...)
	return hex.AppendEncode(out, a.Ciphertext)
}

func (a Artifact) String() string {
	return string(a.Marshal())
}

// Parse splits text on the first separator and decodes both halves.
func Parse(text []byte) (Artifact, error) {
	ivText, ctText, ok := strings.Cut(string(text), separator)
	if !ok {
		return Artifact{}, &FormatError{Reason: "missing iv separator"}
	}
	iv, err := hex.DecodeString(ivText)
	if err != nil {
		return Artifact{}, &FormatError{Reason: "iv is not hex", Err: err}
	}
	if len(iv) != cryptoutil.IVSize {
		return Artifact{}, &FormatError{Reason: fmt.Sprintf("iv is %d bytes, want %d", len(iv), cryptoutil.IVSize)}
	}
	ct, err := hex.DecodeString(ctText)
	if err != nil {
		return Artifact{}, &FormatError{Reason: "ciphertext is not hex", Err: err}
	}
	return Artifact{IV: iv, Ciphertext: ct}, nil
}

// Codec seals and opens artifacts with AES-256-CTR.
type Codec struct {
	// Rand supplies IVs; crypto/rand when nil.
	Rand io.Reader
}

// Seal encrypts plaintext under a fresh IV.
func (c Codec) Seal(plaintext, key []byte) (Artifact, error) {
	iv, ct, err := cryptoutil.EncryptCTR(c.Rand, plaintext, key)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{IV: iv, Ciphertext: ct}, nil
}

// Open decrypts a. It cannot tell a wrong key from a correct one.
func (c Codec) Open(a Artifact, key []byte) ([]byte, error) {
	return cryptoutil.DecryptCTR(a.IV, a.Ciphertext, key)
}
