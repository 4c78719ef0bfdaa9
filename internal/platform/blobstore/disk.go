package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DiskBlobStore stores blob content as files under a root directory with a
// sidecar JSON file holding the metadata. Blobs are laid out as
// <root>/<id> and <root>/<id>.json so content can be streamed straight
// from disk on download.
type DiskBlobStore struct {
	root string
	mu   sync.RWMutex
}

// NewDiskBlobStore creates the root directory if needed and returns a store
// backed by it.
func NewDiskBlobStore(root string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory %s: %w", root, err)
	}
	return &DiskBlobStore{root: root}, nil
}

func (s *DiskBlobStore) contentPath(id string) string {
	return filepath.Join(s.root, id)
}

func (s *DiskBlobStore) metaPath(id string) string {
	return filepath.Join(s.root, id+".json")
}

// Upload writes the content and a metadata sidecar to disk.
func (s *DiskBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	if meta.ContentType != "" {
		if err := ValidateContentType(meta.ContentType); err != nil {
			return nil, err
		}
	}

	meta.ID = uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(s.contentPath(meta.ID))
	if err != nil {
		return nil, fmt.Errorf("creating blob file: %w", err)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), io.LimitReader(content, MaxFileSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(s.contentPath(meta.ID))
		return nil, fmt.Errorf("writing blob content: %w", err)
	}
	if n > MaxFileSize {
		os.Remove(s.contentPath(meta.ID))
		return nil, ErrFileTooLarge
	}

	meta.Size = n
	meta.Hash = fmt.Sprintf("%x", h.Sum(nil))
	meta.CreatedAt = time.Now().UTC()
	if meta.Tags == nil {
		meta.Tags = make(map[string]string)
	}

	if err := s.writeMeta(meta); err != nil {
		os.Remove(s.contentPath(meta.ID))
		return nil, err
	}

	out := meta
	return &out, nil
}

func (s *DiskBlobStore) writeMeta(meta BlobMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding blob metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(meta.ID), data, 0o644); err != nil {
		return fmt.Errorf("writing blob metadata: %w", err)
	}
	return nil
}

func (s *DiskBlobStore) readMeta(id string) (*BlobMetadata, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("reading blob metadata: %w", err)
	}
	var meta BlobMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding blob metadata: %w", err)
	}
	return &meta, nil
}

// Download opens the blob content for streaming and returns its metadata.
func (s *DiskBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.readMeta(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.contentPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("opening blob content: %w", err)
	}
	return f, meta, nil
}

// Delete removes the blob content and its metadata sidecar.
func (s *DiskBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readMeta(id); err != nil {
		return err
	}
	if err := os.Remove(s.contentPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing blob content: %w", err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil {
		return fmt.Errorf("removing blob metadata: %w", err)
	}
	return nil
}

// GetMetadata returns blob metadata without content.
func (s *DiskBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMeta(id)
}

// ListByPatient returns blobs for a given patient, optionally filtered by
// category. It returns the matching page and the total count.
func (s *DiskBlobStore) ListByPatient(ctx context.Context, patientUID, category string, limit, offset int) ([]*BlobMetadata, int, error) {
	return s.Search(ctx, SearchParams{
		PatientUID: patientUID,
		Category:   category,
		Limit:      limit,
		Offset:     offset,
	})
}

// Search scans all metadata sidecars and returns blobs matching the given
// parameters. Suitable for the modest per-patient file counts this store
// is used for.
func (s *DiskBlobStore) Search(_ context.Context, params SearchParams) ([]*BlobMetadata, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, 0, fmt.Errorf("listing blob directory: %w", err)
	}

	var matched []*BlobMetadata
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		meta, err := s.readMeta(id)
		if err != nil {
			continue
		}
		if !matchesSearch(meta, params) {
			continue
		}
		matched = append(matched, meta)
	}

	total := len(matched)
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := params.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	return matched[offset:end], total, nil
}
