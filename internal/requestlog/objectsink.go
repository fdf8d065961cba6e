package requestlog

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/minio/minio-go/v7"
)

// ObjectSink archives finalized entries as individual JSON objects in a
// bucket, keyed by request id — a durable audit trail independent of the
// primary Postgres sink, for deployments that want both.
type ObjectSink struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

func NewObjectSink(client *minio.Client, bucket string, logger *slog.Logger) *ObjectSink {
	return &ObjectSink{client: client, bucket: bucket, logger: logger}
}

func (s *ObjectSink) Write(e Entry) {
	body, err := sonic.Marshal(e)
	if err != nil {
		s.logger.Warn("requestlog: marshal entry failed", "id", e.ID.String(), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := "requests/" + e.ID.String() + ".json"
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		s.logger.Warn("requestlog: object put failed", "id", e.ID.String(), "error", err)
	}
}
