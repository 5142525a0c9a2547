package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

var ErrPersistenceDisabled = errors.New("durable persistence disabled")

// Persister writes a durable copy of an exported snapshot and returns an
// external reference to it. A failure never removes the snapshot; it only
// downgrades its persist status.
type Persister interface {
	Persist(ctx context.Context, doc ExportDocument) (string, error)
}

type noopPersister struct{}

func NewNoopPersister() Persister { return noopPersister{} }

func (noopPersister) Persist(context.Context, ExportDocument) (string, error) {
	return "", ErrPersistenceDisabled
}

type gcsPersister struct {
	log     *logger.Logger
	client  *storage.Client
	bucket  string
	prefix  string
	timeout time.Duration
}

func NewGCSPersister(client *storage.Client, bucket, prefix string, baseLog *logger.Logger) (Persister, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("snapshot bucket is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "snapshots"
	}
	return &gcsPersister{
		log:     baseLog.With("service", "SnapshotGCSPersister"),
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		timeout: 2 * time.Minute,
	}, nil
}

// ObjectKey is <prefix>/<historyKey>/<snapshotID>.json.
func ObjectKey(prefix, historyKey, snapshotID string) string {
	return path.Join(prefix, historyKey, snapshotID+".json")
}

func (p *gcsPersister) Persist(ctx context.Context, doc ExportDocument) (string, error) {
	body, err := doc.Marshal()
	if err != nil {
		return "", fmt.Errorf("encode snapshot export: %w", err)
	}
	key := ObjectKey(p.prefix, doc.HistoryKey, doc.Snapshot.ID)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	w := p.client.Bucket(p.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	p.log.Debug("Snapshot persisted", "bucket", p.bucket, "key", key)
	return fmt.Sprintf("gs://%s/%s", p.bucket, key), nil
}
