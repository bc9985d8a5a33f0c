// Package envfile checks that decrypted bytes look like a dotenv file.
//
// The artifact format cannot detect a wrong password, so this is the only
// signal that decryption produced garbage. It is a heuristic: random bytes
// that happen to parse as KEY=VALUE lines pass.
package envfile

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/subosito/gotenv"
)

var ErrNotDotenv = errors.New("content is not a dotenv file")

// Validate parses data strictly and returns the number of variables found.
func Validate(data []byte) (int, error) {
	if !utf8.Valid(data) {
		return 0, fmt.Errorf("%w: invalid utf-8", ErrNotDotenv)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return 0, fmt.Errorf("%w: contains NUL bytes", ErrNotDotenv)
	}
	env, err := gotenv.StrictParse(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotDotenv, err)
	}
	return len(env), nil
}

// Keys returns the sorted variable names in data, for logging without values.
func Keys(data []byte) ([]string, error) {
	env, err := gotenv.StrictParse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDotenv, err)
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
