package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+\.[a-z0-9]+$`)

// DiskStore keeps blobs as files in one directory.
type DiskStore struct {
	dir     string
	baseURL string
	newID   func() string
}

// NewDiskStore creates dir if needed. baseURL is prefixed to "/audio/<key>";
// an empty baseURL yields root-relative URLs.
// PRE: dir is a writable path
// POST: dir exists
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &DiskStore{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		newID:   uuid.NewString,
	}, nil
}

// Put sniffs data, rejects non-audio payloads and writes it under a fresh key.
// POST: returned Object.Key is valid for Get, Delete and URL
func (s *DiskStore) Put(ctx context.Context, data []byte) (Object, error) {
	contentType, ext, err := Sniff(data)
	if err != nil {
		return Object{}, err
	}
	key := s.newID() + ext
	path := filepath.Join(s.dir, key)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return Object{}, fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return Object{}, fmt.Errorf("commit blob: %w", err)
	}
	slog.Debug("blob_event", "event", "blob_stored", "key", key, "content_type", contentType, "size", len(data))
	return Object{Key: key, ContentType: contentType, Size: int64(len(data))}, nil
}

// Get reads a blob.
// PRE: key was returned by Put
// POST: Returns ErrNotFound for missing keys, ErrInvalidKey for malformed ones
func (s *DiskStore) Get(ctx context.Context, key string) ([]byte, Object, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, Object{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Object{}, ErrNotFound
	}
	if err != nil {
		return nil, Object{}, fmt.Errorf("read blob: %w", err)
	}
	return data, Object{Key: key, ContentType: ContentTypeForKey(key), Size: int64(len(data))}, nil
}

// Delete removes a blob. Missing blobs are not an error.
func (s *DiskStore) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// URL returns the public URL the audio is served from.
func (s *DiskStore) URL(key string) string {
	return s.baseURL + "/audio/" + key
}

func (s *DiskStore) path(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.dir, key), nil
}
