package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/rowjay/dotenvenc/internal/artifact"
	"github.com/rowjay/dotenvenc/internal/compress"
	"github.com/rowjay/dotenvenc/internal/cryptoutil"
	"github.com/rowjay/dotenvenc/internal/locate"
	"github.com/rowjay/dotenvenc/internal/notify"
	"github.com/rowjay/dotenvenc/internal/storage"
	"github.com/rowjay/dotenvenc/internal/util"
	"github.com/rowjay/dotenvenc/internal/version"
)

var (
	ErrNoRemote            = errors.New("no remote storage configured")
	ErrNoRemoteCopies      = errors.New("no remote copies found")
	ErrFingerprintMismatch = errors.New("remote copy does not match its manifest")
	ErrObjectExists        = errors.New("remote object already exists")
)

// Push uploads the encrypted artifact. The remote object is the artifact
// text, compressed and then sealed with DARE under the same key, so a
// tampered remote copy fails on pull instead of decrypting to garbage.
func (a *App) Push(ctx context.Context, secret Secret, encryptedPath string) (manifest *storage.Manifest, err error) {
	ev := notify.Event{Type: notify.EventPush, StartedAt: time.Now()}
	defer func() {
		if manifest != nil {
			ev.Key, ev.Fingerprint = manifest.Key, manifest.Fingerprint
		}
		a.announce(ctx, ev, err)
	}()

	key, err := secret.key()
	if err != nil {
		return nil, err
	}
	if a.Storage == nil {
		return nil, ErrNoRemote
	}
	if err := compress.Validate(a.Remote.Compression); err != nil {
		return nil, err
	}
	src, err := a.resolve(encryptedPath, a.Opts.EncryptedFileName)
	if err != nil {
		return nil, err
	}
	text, err := a.readArtifact(src)
	if err != nil {
		return nil, err
	}
	project, err := a.project(filepath.Dir(src))
	if err != nil {
		return nil, err
	}
	fileName := filepath.Base(src)
	ev.Project, ev.FileName = project, fileName

	ext := "enc"
	if c := compress.Extension(a.Remote.Compression); c != "" {
		ext += "." + c
	}
	now := time.Now()
	objectKey := util.BuildObjectKey(a.Remote.Prefix, project, fileName, now, ext)

	exists, err := a.Storage.Exists(ctx, objectKey)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrObjectExists, objectKey)
	}

	envelope, err := sealEnvelope(text, key, a.Remote.Compression)
	if err != nil {
		return nil, err
	}
	err = util.Retry(ctx, a.Remote.RetryCount, a.Remote.RetryBackoff, func() error {
		return a.Storage.Put(ctx, objectKey, bytes.NewReader(envelope), int64(len(envelope)), map[string]string{"dotenvenc-artifact": "true"})
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", objectKey, err)
	}
	stat, err := a.Storage.Stat(ctx, objectKey)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", objectKey, err)
	}

	manifest = &storage.Manifest{
		ID:          fmt.Sprintf("%s-%d", project, now.UnixNano()),
		Key:         objectKey,
		Project:     project,
		FileName:    fileName,
		Fingerprint: util.BytesMD5(text),
		Compression: a.Remote.Compression,
		CreatedAt:   now.UTC(),
		SizeBytes:   stat.Size,
		ToolVersion: version.Version,
	}
	if err := a.writeManifest(ctx, *manifest); err != nil {
		a.Log.Warn().Err(err).Str("key", objectKey).Msg("failed to write manifest")
	}
	if err := a.applyRetention(ctx, src); err != nil {
		a.Log.Warn().Err(err).Str("file", fileName).Msg("retention failed")
	}
	return manifest, nil
}

// Pull downloads a remote copy, the newest one when objectKey is empty, and
// writes it to the encrypted path.
func (a *App) Pull(ctx context.Context, secret Secret, objectKey, encryptedPath string) (res *Result, err error) {
	ev := notify.Event{Type: notify.EventPull, StartedAt: time.Now()}
	defer func() {
		ev.Key = objectKey
		if res != nil {
			ev.Fingerprint = res.Fingerprint
		}
		a.announce(ctx, ev, err)
	}()

	key, err := secret.key()
	if err != nil {
		return nil, err
	}
	if a.Storage == nil {
		return nil, ErrNoRemote
	}
	dst, err := a.pullTarget(encryptedPath)
	if err != nil {
		return nil, err
	}
	ev.FileName = filepath.Base(dst)
	if ev.Project, err = a.project(filepath.Dir(dst)); err != nil {
		return nil, err
	}
	if objectKey == "" {
		objectKey, err = a.latest(ctx, dst)
		if err != nil {
			return nil, err
		}
	}

	var reader io.ReadCloser
	err = util.Retry(ctx, a.Remote.RetryCount, a.Remote.RetryBackoff, func() error {
		r, gerr := a.Storage.Get(ctx, objectKey)
		if errors.Is(gerr, storage.ErrObjectNotFound) {
			return util.Permanent(gerr)
		}
		reader = r
		return gerr
	})
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	text, err := openEnvelope(reader, key, compressionFromKey(objectKey))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", objectKey, err)
	}
	if _, err := artifact.Parse(text); err != nil {
		return nil, fmt.Errorf("%s: %w", objectKey, err)
	}
	if manifest, err := a.readManifest(ctx, objectKey); err == nil {
		if manifest.Fingerprint != "" && manifest.Fingerprint != util.BytesMD5(text) {
			return nil, fmt.Errorf("%w: %s", ErrFingerprintMismatch, objectKey)
		}
	} else {
		a.Log.Debug().Err(err).Str("key", objectKey).Msg("no manifest")
	}

	guard, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	res, err = a.emit(dst, text, artifactPerm)
	if err != nil {
		return nil, err
	}
	res.ObjectKey = objectKey
	return res, nil
}

// announce reports a finished push or pull. Delivery failures are logged and
// never change the outcome of the operation.
func (a *App) announce(ctx context.Context, ev notify.Event, opErr error) {
	if a.Notifier == nil || errors.Is(opErr, ErrNoRemote) {
		return
	}
	ev.EndedAt = time.Now()
	ev.Duration = ev.EndedAt.Sub(ev.StartedAt).String()
	ev.Status = notify.StatusSuccess
	if opErr != nil {
		ev.Status = notify.StatusFailed
		ev.Error = opErr.Error()
	}
	if err := a.Notifier.Notify(context.WithoutCancel(ctx), ev); err != nil {
		a.Log.Warn().Err(err).Str("event", ev.Type).Msg("notification failed")
	}
}

// List returns the remote copies of the project that owns encryptedPath,
// oldest first, manifests excluded.
func (a *App) List(ctx context.Context, encryptedPath string) ([]storage.ObjectInfo, error) {
	if a.Storage == nil {
		return nil, ErrNoRemote
	}
	dst, err := a.pullTarget(encryptedPath)
	if err != nil {
		return nil, err
	}
	return a.copies(ctx, dst)
}

func (a *App) copies(ctx context.Context, artifactPath string) ([]storage.ObjectInfo, error) {
	project, err := a.project(filepath.Dir(artifactPath))
	if err != nil {
		return nil, err
	}
	// The trailing slash keeps .env.enc from matching .env.enc0 on S3.
	prefix := util.BuildPrefix(a.Remote.Prefix, project, filepath.Base(artifactPath)) + "/"
	objects, err := a.Storage.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := objects[:0]
	for _, obj := range objects {
		if !obj.IsManifest {
			out = append(out, obj)
		}
	}
	return out, nil
}

// applyRetention deletes all but the newest KeepLast copies of the artifact,
// each with its manifest. Zero keeps everything.
func (a *App) applyRetention(ctx context.Context, artifactPath string) error {
	if a.Remote.KeepLast <= 0 {
		return nil
	}
	objects, err := a.copies(ctx, artifactPath)
	if err != nil {
		return err
	}
	if len(objects) <= a.Remote.KeepLast {
		return nil
	}
	var errs []error
	for _, obj := range objects[:len(objects)-a.Remote.KeepLast] {
		if err := a.Storage.Delete(ctx, obj.Key); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := a.Storage.Delete(ctx, storage.ManifestKey(obj.Key)); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			errs = append(errs, err)
		}
		a.Log.Debug().Str("key", obj.Key).Msg("pruned remote copy")
	}
	return errors.Join(errs...)
}

func (a *App) latest(ctx context.Context, artifactPath string) (string, error) {
	objects, err := a.copies(ctx, artifactPath)
	if err != nil {
		return "", err
	}
	if len(objects) == 0 {
		return "", fmt.Errorf("%w for %s", ErrNoRemoteCopies, filepath.Base(artifactPath))
	}
	// Keys embed a sortable UTC timestamp.
	return objects[len(objects)-1].Key, nil
}

// pullTarget picks where a pulled artifact goes: explicit path, an existing
// artifact, the artifact slot beside the plaintext, or the start directory.
func (a *App) pullTarget(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, name := range []string{a.Opts.EncryptedFileName, a.Opts.DecryptedFileName} {
		dir, err := a.locator().Locate(name)
		if err == nil {
			return filepath.Join(dir, a.Opts.EncryptedFileName), nil
		}
		if !errors.Is(err, locate.ErrNotFound) {
			return "", err
		}
	}
	dir := a.Opts.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, a.Opts.EncryptedFileName), nil
}

func (a *App) project(dir string) (string, error) {
	if a.Remote.Project != "" {
		return a.Remote.Project, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	name := filepath.Base(abs)
	if name == string(filepath.Separator) || name == "." {
		return "root", nil
	}
	return name, nil
}

func (a *App) readArtifact(path string) ([]byte, error) {
	text, err := afero.ReadFile(a.Fs, path)
	if err != nil {
		return nil, err
	}
	text = trimArtifact(text)
	if _, err := artifact.Parse(text); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return text, nil
}

func (a *App) writeManifest(ctx context.Context, manifest storage.Manifest) error {
	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	key := storage.ManifestKey(manifest.Key)
	return a.Storage.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), map[string]string{"dotenvenc-manifest": "true"})
}

func (a *App) readManifest(ctx context.Context, key string) (storage.Manifest, error) {
	reader, err := a.Storage.Get(ctx, storage.ManifestKey(key))
	if err != nil {
		return storage.Manifest{}, err
	}
	defer reader.Close()
	var manifest storage.Manifest
	if err := json.NewDecoder(reader).Decode(&manifest); err != nil {
		return storage.Manifest{}, err
	}
	return manifest, nil
}

func sealEnvelope(text, key []byte, compression string) ([]byte, error) {
	var buf bytes.Buffer
	sealer, err := cryptoutil.SealWriter(&buf, key)
	if err != nil {
		return nil, err
	}
	comp, err := compress.WrapWriter(compression, sealer)
	if err != nil {
		return nil, err
	}
	if _, err := comp.Write(text); err != nil {
		return nil, err
	}
	if err := comp.Close(); err != nil {
		return nil, err
	}
	if err := sealer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func openEnvelope(r io.Reader, key []byte, compression string) ([]byte, error) {
	opened, err := cryptoutil.OpenReader(r, key)
	if err != nil {
		return nil, err
	}
	decomp, err := compress.WrapReader(compression, opened)
	if err != nil {
		return nil, err
	}
	defer decomp.Close()
	return io.ReadAll(decomp)
}

func compressionFromKey(key string) string {
	switch {
	case strings.HasSuffix(key, "."+compress.Extension(compress.TypeZstd)):
		return compress.TypeZstd
	case strings.HasSuffix(key, "."+compress.Extension(compress.TypeGzip)):
		return compress.TypeGzip
	default:
		return compress.TypeNone
	}
}
