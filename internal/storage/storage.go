// Package storage wraps a MinIO-compatible blob store with the narrow
// surface the ingestion pipeline needs: bucket-per-user object storage,
// JSON put/get, raw object get-or-nil, and presigned URLs.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// StorageError wraps any underlying MinIO failure with the operation that
// triggered it, mirroring original_source's StorageError convention.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Config holds MinIO connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
}

// Client is a thin, bucket-ensuring wrapper over a MinIO client.
type Client struct {
	mc     *minio.Client
	log    *zap.Logger
	seen   map[string]bool
}

func New(cfg Config, log *zap.Logger) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, &StorageError{Op: "new-client", Err: err}
	}
	return &Client{mc: mc, log: log, seen: make(map[string]bool)}, nil
}

func (c *Client) ensureBucket(ctx context.Context, bucket string) error {
	if c.seen[bucket] {
		return nil
	}
	exists, err := c.mc.BucketExists(ctx, bucket)
	if err != nil {
		return &StorageError{Op: "bucket-exists:" + bucket, Err: err}
	}
	if !exists {
		c.log.Info("bucket does not exist, creating", zap.String("bucket", bucket))
		if err := c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return &StorageError{Op: "make-bucket:" + bucket, Err: err}
		}
	}
	c.seen[bucket] = true
	return nil
}

// UploadFileObj uploads an arbitrary reader and returns an s3:// URI, the
// same scheme original_source.storage.StorageClient.upload_fileobj returns.
func (c *Client) UploadFileObj(ctx context.Context, bucket, objectName string, r io.Reader, size int64, contentType string) (string, error) {
	if err := c.ensureBucket(ctx, bucket); err != nil {
		return "", err
	}
	_, err := c.mc.PutObject(ctx, bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", &StorageError{Op: "put-object:" + bucket + "/" + objectName, Err: err}
	}
	uri := fmt.Sprintf("s3://%s/%s", bucket, objectName)
	c.log.Debug("uploaded object", zap.String("uri", uri))
	return uri, nil
}

// PutJSON marshals payload with compact separators (matching the Python
// json.dumps(..., separators=(",", ":")) convention) and uploads it.
func (c *Client) PutJSON(ctx context.Context, bucket, objectName string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &StorageError{Op: "marshal-json", Err: err}
	}
	return c.UploadFileObj(ctx, bucket, objectName, bytes.NewReader(body), int64(len(body)), "application/json")
}

// GetObject fetches raw bytes, returning (nil, nil) when the object is
// missing — the Python get_object's None-on-miss behavior, not an error.
func (c *Client) GetObject(ctx context.Context, bucket, objectName string) ([]byte, error) {
	if err := c.ensureBucket(ctx, bucket); err != nil {
		return nil, err
	}
	obj, err := c.mc.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, &StorageError{Op: "get-object:" + bucket + "/" + objectName, Err: err}
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		var errResp minio.ErrorResponse
		if errors.As(err, &errResp) && (errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchObject") {
			c.log.Info("object not found", zap.String("bucket", bucket), zap.String("object", objectName))
			return nil, nil
		}
		return nil, &StorageError{Op: "read-object:" + bucket + "/" + objectName, Err: err}
	}
	return data, nil
}

// ReadJSON fetches and unmarshals a JSON object, returning (false, nil) when
// missing.
func (c *Client) ReadJSON(ctx context.Context, bucket, objectName string, out any) (bool, error) {
	raw, err := c.GetObject(ctx, bucket, objectName)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, &StorageError{Op: "unmarshal-json:" + bucket + "/" + objectName, Err: err}
	}
	return true, nil
}

// ObjectExists performs a head-style stat check without downloading.
func (c *Client) ObjectExists(ctx context.Context, bucket, objectName string) (bool, error) {
	if err := c.ensureBucket(ctx, bucket); err != nil {
		return false, err
	}
	_, err := c.mc.StatObject(ctx, bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		var errResp minio.ErrorResponse
		if errors.As(err, &errResp) && (errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchObject") {
			return false, nil
		}
		return false, &StorageError{Op: "stat-object:" + bucket + "/" + objectName, Err: err}
	}
	return true, nil
}

// DeleteObject removes a single object; a missing object is not an error.
func (c *Client) DeleteObject(ctx context.Context, bucket, objectName string) error {
	err := c.mc.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		var errResp minio.ErrorResponse
		if errors.As(err, &errResp) && (errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchObject") {
			return nil
		}
		return &StorageError{Op: "remove-object:" + bucket + "/" + objectName, Err: err}
	}
	return nil
}

// PresignedGetURL generates a time-limited download URL.
func (c *Client) PresignedGetURL(ctx context.Context, bucket, objectName string, expires time.Duration) (string, error) {
	if err := c.ensureBucket(ctx, bucket); err != nil {
		return "", err
	}
	u, err := c.mc.PresignedGetObject(ctx, bucket, objectName, expires, nil)
	if err != nil {
		return "", &StorageError{Op: "presign:" + bucket + "/" + objectName, Err: err}
	}
	return u.String(), nil
}

// ListObjects streams object keys under prefix into the returned slice.
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	if err := c.ensureBucket(ctx, bucket); err != nil {
		return nil, err
	}
	var names []string
	for obj := range c.mc.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, &StorageError{Op: "list-objects:" + bucket + "/" + prefix, Err: obj.Err}
		}
		names = append(names, obj.Key)
	}
	return names, nil
}
