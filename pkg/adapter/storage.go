package adapter

import (
	"context"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// Archive keeps the raw transcripts that extraction ran over, keyed by
// conversation ID, so reviewers can trace a pending memory back to its
// source.
type Archive interface {
	Put(ctx context.Context, conversationID string, transcript []byte) error
	Get(ctx context.Context, conversationID string) ([]byte, error)
}

// gcsArchive implements Archive on Cloud Storage.
type gcsArchive struct {
	bucketName string
	client     *storage.Client
}

// NewArchive creates a Cloud Storage backed transcript archive.
func NewArchive(ctx context.Context, bucketName string) (Archive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &gcsArchive{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (s *gcsArchive) objectKey(conversationID string) string {
	return path.Join("transcripts", conversationID+".txt")
}

func (s *gcsArchive) Put(ctx context.Context, conversationID string, transcript []byte) error {
	obj := s.client.Bucket(s.bucketName).Object(s.objectKey(conversationID))
	w := obj.NewWriter(ctx)
	if _, err := w.Write(transcript); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write transcript", goerr.V("conversation_id", conversationID))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize transcript upload", goerr.V("conversation_id", conversationID))
	}
	return nil
}

func (s *gcsArchive) Get(ctx context.Context, conversationID string) ([]byte, error) {
	obj := s.client.Bucket(s.bucketName).Object(s.objectKey(conversationID))
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read transcript", goerr.V("conversation_id", conversationID))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read transcript body", goerr.V("conversation_id", conversationID))
	}
	return data, nil
}
