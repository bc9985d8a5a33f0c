// Package app resolves .env and .env.enc paths and drives
// read, transform and write for encrypt and decrypt.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/rowjay/dotenvenc/internal/artifact"
	"github.com/rowjay/dotenvenc/internal/config"
	"github.com/rowjay/dotenvenc/internal/cryptoutil"
	"github.com/rowjay/dotenvenc/internal/envfile"
	"github.com/rowjay/dotenvenc/internal/locate"
	"github.com/rowjay/dotenvenc/internal/lock"
	"github.com/rowjay/dotenvenc/internal/notify"
	"github.com/rowjay/dotenvenc/internal/storage"
	"github.com/rowjay/dotenvenc/internal/util"
)

const (
	plaintextPerm = 0o600
	artifactPerm  = 0o644
)

var (
	// ErrPasswordRequired is returned before any filesystem access.
	ErrPasswordRequired = errors.New("a password is required")
	// ErrSuspectPlaintext means Verify rejected the decrypted bytes.
	ErrSuspectPlaintext = errors.New("decrypted content is not a dotenv file (wrong password?)")
)

// Options replaces package-level defaults so several configurations can
// coexist in one process.
type Options struct {
	DecryptedFileName string
	EncryptedFileName string
	BoundaryMarker    string
	// Write false returns the transformed bytes in Result.Data instead.
	Write bool
	// Verify refuses to write decrypted content that is not a dotenv file.
	Verify      bool
	LockFile    string
	DisableLock bool
	// LockWait is how long a writer waits for another process; zero fails fast.
	LockWait time.Duration
	// MaxParallelism bounds the batch operations.
	MaxParallelism int
	// Dir is where default-path searches start; "." when empty.
	Dir string
}

// DefaultOptions uses .env, .env.enc and package.json, writing results.
func DefaultOptions() Options {
	return Options{
		DecryptedFileName: config.DefaultDecryptedName,
		EncryptedFileName: config.DefaultEncryptedName,
		BoundaryMarker:    config.DefaultBoundaryMarker,
		Write:             true,
		MaxParallelism:    1,
		Dir:               ".",
	}
}

// OptionsFromConfig maps loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.DecryptedFileName = cfg.Files.DecryptedName
	opts.EncryptedFileName = cfg.Files.EncryptedName
	opts.BoundaryMarker = cfg.Files.BoundaryMarker
	opts.Write = cfg.Write
	opts.Verify = cfg.Verify
	opts.LockFile = cfg.Global.LockFile
	opts.LockWait = cfg.Global.LockWait
	opts.MaxParallelism = cfg.Global.MaxParallelism
	return opts
}

// Secret is a password stretched by cryptoutil.DeriveKey, or a raw key.
type Secret struct {
	Password []byte
	Key      []byte
}

// Password wraps a password; its bytes are used as given.
func Password(p string) Secret {
	return Secret{Password: []byte(p)}
}

// RawKey wraps a 32-byte key that bypasses DeriveKey.
func RawKey(k []byte) Secret {
	return Secret{Key: k}
}

func (s Secret) key() ([]byte, error) {
	if len(s.Key) > 0 {
		if len(s.Key) != cryptoutil.KeySize {
			return nil, fmt.Errorf("invalid key length: %d (expected %d bytes)", len(s.Key), cryptoutil.KeySize)
		}
		return append([]byte(nil), s.Key...), nil
	}
	if len(s.Password) == 0 {
		return nil, ErrPasswordRequired
	}
	return cryptoutil.DeriveKey(s.Password), nil
}

// Result describes one transformed file.
type Result struct {
	Path string
	// Fingerprint is the md5 of the written file; empty when nothing was written.
	Fingerprint string
	// Data holds the output when Options.Write is false.
	Data []byte
	// ObjectKey is set for pulls.
	ObjectKey string
}

// App runs encrypt, decrypt and remote operations over Fs.
type App struct {
	Opts    Options
	Fs      afero.Fs
	Codec   artifact.Codec
	Log     zerolog.Logger
	Storage storage.Storage
	Remote  config.RemoteConfig

	// Notifier hears about every push and pull; nil disables it.
	Notifier notify.Notifier
}

// New returns an App on the OS filesystem with no remote configured.
func New(opts Options, log zerolog.Logger) *App {
	return &App{Opts: opts, Fs: afero.NewOsFs(), Log: log}
}

// WithRemote enables Push, Pull and List.
func (a *App) WithRemote(store storage.Storage, cfg config.RemoteConfig) *App {
	a.Storage = store
	a.Remote = cfg
	return a
}

// Encrypt seals the decrypted file into the encrypted file. Without an
// explicit decryptedPath the default file is searched for upward; without
// an explicit encryptedPath the artifact lands beside the plaintext.
func (a *App) Encrypt(ctx context.Context, secret Secret, decryptedPath, encryptedPath string) (*Result, error) {
	key, err := secret.key()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := a.resolve(decryptedPath, a.Opts.DecryptedFileName)
	if err != nil {
		return nil, err
	}
	dst := encryptedPath
	if dst == "" {
		dst = filepath.Join(filepath.Dir(src), a.Opts.EncryptedFileName)
	}

	guard, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	return a.encryptOne(key, src, dst)
}

// Decrypt opens the encrypted file into the decrypted file, mirroring Encrypt.
// A wrong password produces garbage rather than an error unless Verify is set.
func (a *App) Decrypt(ctx context.Context, secret Secret, encryptedPath, decryptedPath string) (*Result, error) {
	key, err := secret.key()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := a.resolve(encryptedPath, a.Opts.EncryptedFileName)
	if err != nil {
		return nil, err
	}
	dst := decryptedPath
	if dst == "" {
		dst = filepath.Join(filepath.Dir(src), a.Opts.DecryptedFileName)
	}

	guard, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	return a.decryptOne(key, src, dst)
}

// Seal encrypts plaintext in memory and returns the artifact text.
func (a *App) Seal(secret Secret, plaintext []byte) ([]byte, error) {
	key, err := secret.key()
	if err != nil {
		return nil, err
	}
	art, err := a.Codec.Seal(plaintext, key)
	if err != nil {
		return nil, err
	}
	return art.Marshal(), nil
}

// Open decrypts artifact text in memory.
func (a *App) Open(secret Secret, text []byte) ([]byte, error) {
	key, err := secret.key()
	if err != nil {
		return nil, err
	}
	art, err := artifact.Parse(trimArtifact(text))
	if err != nil {
		return nil, err
	}
	return a.Codec.Open(art, key)
}

// EncryptAll encrypts each path to its sibling artifact (path plus the
// encrypted suffix) concurrently. Results keep the order of paths.
func (a *App) EncryptAll(ctx context.Context, secret Secret, paths []string) ([]*Result, error) {
	return a.batch(ctx, secret, paths, func(key []byte, p string) (*Result, error) {
		return a.encryptOne(key, p, p+a.suffix())
	})
}

// DecryptAll reverses EncryptAll; every path must carry the encrypted suffix.
func (a *App) DecryptAll(ctx context.Context, secret Secret, paths []string) ([]*Result, error) {
	suffix := a.suffix()
	for _, p := range paths {
		if !strings.HasSuffix(p, suffix) || len(p) == len(suffix) {
			return nil, fmt.Errorf("%s does not end with %s", p, suffix)
		}
	}
	return a.batch(ctx, secret, paths, func(key []byte, p string) (*Result, error) {
		return a.decryptOne(key, p, strings.TrimSuffix(p, suffix))
	})
}

func (a *App) batch(ctx context.Context, secret Secret, paths []string, fn func(key []byte, p string) (*Result, error)) ([]*Result, error) {
	key, err := secret.key()
	if err != nil {
		return nil, err
	}
	paths = dedupe(paths)
	if len(paths) == 0 {
		return nil, nil
	}

	guard, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	results := make([]*Result, len(paths))
	eg, egCtx := errgroup.WithContext(ctx)
	limit := a.Opts.MaxParallelism
	if limit <= 0 {
		limit = 1
	}
	eg.SetLimit(limit)
	for i, p := range paths {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			res, err := fn(key, p)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (a *App) encryptOne(key []byte, src, dst string) (*Result, error) {
	plain, err := afero.ReadFile(a.Fs, src)
	if err != nil {
		return nil, err
	}
	art, err := a.Codec.Seal(plain, key)
	if err != nil {
		return nil, err
	}
	a.Log.Debug().Str("from", src).Str("to", dst).Int("bytes", len(plain)).Msg("encrypted")
	return a.emit(dst, art.Marshal(), artifactPerm)
}

func (a *App) decryptOne(key []byte, src, dst string) (*Result, error) {
	text, err := afero.ReadFile(a.Fs, src)
	if err != nil {
		return nil, err
	}
	art, err := artifact.Parse(trimArtifact(text))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	plain, err := a.Codec.Open(art, key)
	if err != nil {
		return nil, err
	}
	if a.Opts.Verify {
		if _, err := envfile.Validate(plain); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSuspectPlaintext, err)
		}
		if keys, err := envfile.Keys(plain); err == nil {
			a.Log.Debug().Str("from", src).Strs("keys", keys).Msg("verified")
		}
	}
	a.Log.Debug().Str("from", src).Str("to", dst).Int("bytes", len(plain)).Msg("decrypted")
	return a.emit(dst, plain, plaintextPerm)
}

// emit overwrites dst with data and fingerprints what landed on disk. The
// write is not atomic: a crash can leave dst truncated.
func (a *App) emit(dst string, data []byte, perm os.FileMode) (*Result, error) {
	if !a.Opts.Write {
		return &Result{Path: dst, Data: data}, nil
	}
	if err := afero.WriteFile(a.Fs, dst, data, perm); err != nil {
		return nil, err
	}
	sum, err := util.FileMD5(a.Fs, dst)
	if err != nil {
		return nil, err
	}
	return &Result{Path: dst, Fingerprint: sum}, nil
}

// resolve returns explicit verbatim, or searches upward for name.
func (a *App) resolve(explicit, name string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	dir, err := a.locator().Locate(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	a.Log.Debug().Str("path", path).Msg("located")
	return path, nil
}

func (a *App) locator() locate.Locator {
	return locate.Locator{Fs: a.Fs, Dir: a.Opts.Dir, Marker: a.Opts.BoundaryMarker}
}

// acquire takes the process lock for writing calls; dry runs and library
// callers that opt out get a nil lock, which releases as a no-op.
func (a *App) acquire(ctx context.Context) (*lock.Lock, error) {
	if !a.Opts.Write || a.Opts.DisableLock {
		return nil, nil
	}
	return lock.AcquireWait(ctx, a.Opts.LockFile, a.Opts.LockWait)
}

// suffix is what EncryptedFileName adds to DecryptedFileName, ".enc" by default.
func (a *App) suffix() string {
	dec, enc := a.Opts.DecryptedFileName, a.Opts.EncryptedFileName
	if strings.HasPrefix(enc, dec) && len(enc) > len(dec) {
		return enc[len(dec):]
	}
	return ".enc"
}

// trimArtifact drops trailing whitespace an editor or checkout may add.
func trimArtifact(text []byte) []byte {
	return bytes.TrimRight(text, " \t\r\n")
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		clean := filepath.Clean(p)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		out = append(out, clean)
	}
	return out
}
