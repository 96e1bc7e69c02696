package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrStorageDirMissing indicates the configured storage directory does not exist.
	ErrStorageDirMissing = errors.New("storage directory does not exist")
	// ErrStorageDirAccess indicates the storage directory is not readable and writable.
	ErrStorageDirAccess = errors.New("storage directory is not readable and writable")
	// ErrInvalidBlobKey indicates a key that would escape the storage directory.
	ErrInvalidBlobKey = errors.New("invalid blob key")
)

// ValidateLocalDir checks that dir exists, is a directory, and that the
// process can both list it and create files in it.
func ValidateLocalDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("please create dir %s: %w", dir, ErrStorageDirMissing)
		}
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory: %w", dir, ErrStorageDirMissing)
	}

	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open %s: %w: %w", dir, ErrStorageDirAccess, err)
	}
	_, err = f.Readdirnames(1)
	_ = f.Close()
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read %s: %w: %w", dir, ErrStorageDirAccess, err)
	}

	probe, err := os.CreateTemp(dir, ".access-check-*")
	if err != nil {
		return fmt.Errorf("write %s: %w: %w", dir, ErrStorageDirAccess, err)
	}
	name := probe.Name()
	_ = probe.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("remove probe in %s: %w: %w", dir, ErrStorageDirAccess, err)
	}

	return nil
}

// Blob describes stored package content.
type Blob struct {
	Key  string
	Hash string
	Size int64
}

// BlobStore persists release bundles.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader) (Blob, error)
	Open(key string) (io.ReadCloser, error)
}

// LocalBlobs stores bundles as flat files named by their SHA-256 digest.
type LocalBlobs struct {
	dir string
}

// NewLocalBlobs returns a blob store rooted at dir. dir must have been
// checked with ValidateLocalDir.
func NewLocalBlobs(dir string) *LocalBlobs {
	return &LocalBlobs{dir: dir}
}

// Put streams r into the storage directory and returns its digest-derived key.
func (l *LocalBlobs) Put(ctx context.Context, r io.Reader) (Blob, error) {
	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		return Blob{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), contextReader{ctx: ctx, r: r})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Blob{}, fmt.Errorf("write blob: %w", err)
	}

	hash := hex.EncodeToString(hasher.Sum(nil))
	if err := os.Rename(tmpName, filepath.Join(l.dir, hash)); err != nil {
		return Blob{}, fmt.Errorf("commit blob: %w", err)
	}

	return Blob{Key: hash, Hash: hash, Size: size}, nil
}

// Open returns the content stored under key.
func (l *LocalBlobs) Open(key string) (io.ReadCloser, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return nil, ErrInvalidBlobKey
	}
	f, err := os.Open(filepath.Join(l.dir, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
