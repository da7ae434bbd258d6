package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	storagego "github.com/supabase-community/storage-go"

	"clipforge/internal/generation"
)

// objectAPI is the part of the Supabase Storage client used here.
type objectAPI interface {
	upload(path string, data io.Reader, contentType string) error
	download(path string) ([]byte, error)
	// remove reports how many objects were deleted.
	remove(path string) (int, error)
}

type bucketAPI struct {
	client *storagego.Client
	bucket string
}

func (b bucketAPI) upload(path string, data io.Reader, contentType string) error {
	upsert := false
	_, err := b.client.UploadFile(b.bucket, path, data, storagego.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	return err
}

func (b bucketAPI) download(path string) ([]byte, error) {
	return b.client.DownloadFile(b.bucket, path)
}

func (b bucketAPI) remove(path string) (int, error) {
	removed, err := b.client.RemoveFile(b.bucket, []string{path})
	return len(removed), err
}

// SupabaseStore keeps artifacts in a Supabase Storage bucket. References are
// object paths inside the bucket.
type SupabaseStore struct {
	api     objectAPI
	baseURL string
	bucket  string
	now     func() time.Time
}

// NewSupabaseStore connects to the storage API of the project at supabaseURL.
func NewSupabaseStore(supabaseURL, serviceRoleKey, bucket string) (*SupabaseStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(supabaseURL), "/")
	if baseURL == "" || strings.TrimSpace(serviceRoleKey) == "" {
		return nil, errors.New("storage: supabase url and service role key are required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: supabase bucket is required")
	}
	client := storagego.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil)
	return &SupabaseStore{
		api:     bucketAPI{client: client, bucket: bucket},
		baseURL: baseURL,
		bucket:  bucket,
		now:     time.Now,
	}, nil
}

// Materialize uploads blob and returns its object path.
func (s *SupabaseStore) Materialize(ctx context.Context, blob generation.Blob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(blob.Data) == 0 {
		return "", errors.New("storage: empty artifact")
	}
	key := objectKey(s.now(), blob.MIMEType)
	contentType := blob.MIMEType
	if contentType == "" {
		contentType = mimeForKey(key)
	}
	if err := s.api.upload(key, bytes.NewReader(blob.Data), contentType); err != nil {
		return "", fmt.Errorf("storage: upload %s: %w", key, err)
	}
	return key, nil
}

// Open downloads the object at ref.
func (s *SupabaseStore) Open(ctx context.Context, ref string) (*generation.Blob, error) {
	key, err := sanitizeKey(ref)
	if err != nil {
		return nil, err
	}
	data, err := s.api.download(key)
	if err != nil {
		if isMissingObject(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: download %s: %w", key, err)
	}
	return &generation.Blob{Data: data, MIMEType: mimeForKey(key)}, nil
}

// Release deletes the object at ref.
func (s *SupabaseStore) Release(ctx context.Context, ref string) error {
	key, err := sanitizeKey(ref)
	if err != nil {
		return err
	}
	n, err := s.api.remove(key)
	if err != nil {
		return fmt.Errorf("storage: remove %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PublicURL returns the public object URL for ref. It only resolves when the
// bucket is public.
func (s *SupabaseStore) PublicURL(ref string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, strings.TrimLeft(ref, "/"))
}

func isMissingObject(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}
