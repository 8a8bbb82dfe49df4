// Package images keeps short-lived image blobs referenced by image widgets.
// Blobs live on disk; the index is in memory and does not survive a restart.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown or expired images.
	ErrNotFound = errors.New("image not found")

	// ErrTooLarge is returned when a blob exceeds the upload limit.
	ErrTooLarge = errors.New("image too large")
)

// DefaultMaxUploadBytes caps a single upload when no limit is configured.
const DefaultMaxUploadBytes = 50 << 20

// Image is the metadata of one stored blob.
type Image struct {
	ID        string
	Path      string
	MimeType  string
	Size      int64
	CreatedAt time.Time
	ExpiresAt time.Time // zero means no expiry
}

// Expired reports whether the image should no longer be served.
func (img Image) Expired(now time.Time) bool {
	return !img.ExpiresAt.IsZero() && now.After(img.ExpiresAt)
}

// Options configures a Store.
type Options struct {
	Dir            string
	MaxUploadBytes int64
}

// Store indexes blobs written under one directory.
type Store struct {
	dir            string
	maxUploadBytes int64

	mu     sync.RWMutex
	images map[string]Image
}

// NewStore creates the directory if needed.
func NewStore(opts Options) (*Store, error) {
	dir := opts.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "agentui-images")
	}
	maxBytes := opts.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image dir: %w", err)
	}
	return &Store{
		dir:            dir,
		maxUploadBytes: maxBytes,
		images:         make(map[string]Image),
	}, nil
}

// MaxUploadBytes returns the per-image size limit.
func (s *Store) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// Put copies r to disk and indexes it.
func (s *Store) Put(ctx context.Context, r io.Reader, mimeType string, expiresAt time.Time) (Image, error) {
	id := uuid.NewString()
	path := filepath.Join(s.dir, id)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return Image{}, fmt.Errorf("failed to create image file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, s.maxUploadBytes+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		_ = os.Remove(path)
		return Image{}, fmt.Errorf("failed to write image: %w", err)
	case closeErr != nil:
		_ = os.Remove(path)
		return Image{}, fmt.Errorf("failed to write image: %w", closeErr)
	case n > s.maxUploadBytes:
		_ = os.Remove(path)
		return Image{}, ErrTooLarge
	}

	img := Image{
		ID:        id,
		Path:      path,
		MimeType:  mimeType,
		Size:      n,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}

	s.mu.Lock()
	s.images[id] = img
	s.mu.Unlock()
	return img, nil
}

// Get returns the metadata of a live image.
func (s *Store) Get(_ context.Context, id string) (Image, error) {
	s.mu.RLock()
	img, ok := s.images[id]
	s.mu.RUnlock()

	if !ok || img.Expired(time.Now()) {
		return Image{}, ErrNotFound
	}
	return img, nil
}

// Open returns the metadata and an open reader for a live image.
func (s *Store) Open(ctx context.Context, id string) (Image, io.ReadCloser, error) {
	img, err := s.Get(ctx, id)
	if err != nil {
		return Image{}, nil, err
	}
	f, err := os.Open(img.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Image{}, nil, ErrNotFound
		}
		return Image{}, nil, fmt.Errorf("failed to open image: %w", err)
	}
	return img, f, nil
}

// Delete removes an image and its file.
func (s *Store) Delete(_ context.Context, id string) {
	s.mu.Lock()
	img, ok := s.images[id]
	delete(s.images, id)
	s.mu.Unlock()

	if ok {
		_ = os.Remove(img.Path)
	}
}

// Cleanup deletes every image expired at now and returns how many were removed.
func (s *Store) Cleanup(ctx context.Context, now time.Time) int {
	s.mu.RLock()
	var expired []string
	for id, img := range s.images {
		if img.Expired(now) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range expired {
		s.Delete(ctx, id)
	}
	return len(expired)
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (s *Store) RunCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Cleanup(ctx, now)
		}
	}
}
