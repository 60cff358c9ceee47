package repository

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
)

// MinioBlobStore keeps snapshot documents as objects under a key prefix.
type MinioBlobStore struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinioBlobStore(client *minio.Client, bucket, prefix string) *MinioBlobStore {
	return &MinioBlobStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *MinioBlobStore) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *MinioBlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinioErr(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateMinioErr(err)
	}
	return data, nil
}

func (s *MinioBlobStore) Put(ctx context.Context, name string, data []byte) error {
	contentType := mimetype.Detect(data).String()
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

func translateMinioErr(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrBlobNotFound
	}
	return err
}
