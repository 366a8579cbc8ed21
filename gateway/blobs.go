package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
)

// maxDownloadBytes bounds Download; uploads are capped well below this by the handlers.
const maxDownloadBytes = 32 << 20

// GCSBlobs stores objects in one Cloud Storage bucket.
type GCSBlobs struct {
	client *storage.Client
	bucket string
	urls   utils.ObjectURLConfig
}

func NewGCSBlobs(client *storage.Client, bucket string, urls utils.ObjectURLConfig) *GCSBlobs {
	urls.Bucket = bucket
	return &GCSBlobs{client: client, bucket: bucket, urls: urls}
}

func (b *GCSBlobs) Upload(ctx context.Context, objectKey string, data []byte, contentType string) error {
	wc := b.client.Bucket(b.bucket).Object(objectKey).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", objectKey, err)
	}
	return nil
}

func (b *GCSBlobs) Download(ctx context.Context, objectKey string) ([]byte, error) {
	reader, err := b.client.Bucket(b.bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(io.LimitReader(reader, maxDownloadBytes))
}

func (b *GCSBlobs) PublicURL(objectKey string) string {
	return utils.BuildObjectAccessURL(b.urls, objectKey)
}

// MemoryBlobs keeps objects in process; used when no bucket is configured and in tests.
type MemoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	BaseURL string
}

func NewMemoryBlobs(baseURL string) *MemoryBlobs {
	return &MemoryBlobs{objects: map[string][]byte{}, types: map[string]string{}, BaseURL: baseURL}
}

func (m *MemoryBlobs) Upload(ctx context.Context, objectKey string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectKey] = append([]byte(nil), data...)
	m.types[objectKey] = contentType
	return nil
}

func (m *MemoryBlobs) Download(ctx context.Context, objectKey string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectKey]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBlobs) PublicURL(objectKey string) string {
	return utils.BuildObjectAccessURL(utils.ObjectURLConfig{AccessBaseURL: m.BaseURL}, objectKey)
}

// ContentType reports the stored content type of objectKey.
func (m *MemoryBlobs) ContentType(objectKey string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.types[objectKey]
}

func (m *MemoryBlobs) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
