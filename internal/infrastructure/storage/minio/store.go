package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
)

// ErrDocumentNotFound is returned when the object key does not exist.
var ErrDocumentNotFound = apperrors.New(apperrors.ErrCodeNotFound, "document not found")

// DocumentStore is the raw-document port used by the results service.
type DocumentStore interface {
	// Upload stores a document and returns its object key.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// UploadStream stores a document from a reader.
	UploadStream(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	// Download returns the document contents.
	Download(ctx context.Context, key string) ([]byte, error)
	// Exists reports whether the key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes the document.
	Delete(ctx context.Context, key string) error
	// PresignedURL returns a time-limited download link for review UIs.
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ResultDocumentKey builds the object key for a raw result document.
func ResultDocumentKey(submissionID, resultSetID, filename string) string {
	return fmt.Sprintf("results/%s/%s/%s", submissionID, resultSetID, filename)
}

type documentStore struct {
	client *Client
	logger logging.Logger
}

// NewDocumentStore builds the MinIO-backed document store.
func NewDocumentStore(client *Client, log logging.Logger) DocumentStore {
	return &documentStore{client: client, logger: log.Named("document_store")}
}

func (s *documentStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return s.UploadStream(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

func (s *documentStore) UploadStream(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	if key == "" {
		return "", apperrors.InvalidParam("object key is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.client.api.PutObject(ctx, s.client.bucket, key, reader, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		s.logger.Error("upload failed", logging.String("key", key), logging.Err(err))
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to upload document")
	}

	s.logger.Debug("document uploaded",
		logging.String("key", key),
		logging.Int64("size", info.Size),
	)
	return key, nil
}

func (s *documentStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.api.GetObject(ctx, s.client.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to open document")
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrDocumentNotFound
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to read document")
	}
	return data, nil
}

func (s *documentStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.api.StatObject(ctx, s.client.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to stat document")
	}
	return true, nil
}

func (s *documentStore) Delete(ctx context.Context, key string) error {
	if err := s.client.api.RemoveObject(ctx, s.client.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to delete document")
	}
	return nil
}

func (s *documentStore) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.api.PresignedGetObject(ctx, s.client.bucket, key, expiry, nil)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to presign document url")
	}
	return u.String(), nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey"
}
