package dashboard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"retflow/internal/observability"
	"retflow/internal/storage"
	"retflow/pkg/errors"
	"retflow/pkg/models"
)

// Publisher runs the publish stage: fetch the converted file from
// object storage and register it on the dashboard server.
type Publisher struct {
	client   *Client
	store    storage.ObjectStorage
	cfg      models.Dashboard
	password string
	logger   *observability.Logger
}

// PublishResult summarizes a completed publish.
type PublishResult struct {
	DataSource       string
	Folder           string
	AlreadyPublished bool
}

// NewPublisher creates a publisher. The password comes pre-resolved
// from the credential store.
func NewPublisher(client *Client, store storage.ObjectStorage, cfg models.Dashboard, password string, logger *observability.Logger) *Publisher {
	if logger == nil {
		logger = observability.Default()
	}
	return &Publisher{client: client, store: store, cfg: cfg, password: password, logger: logger}
}

// Publish downloads the converted file and uploads it as a data source
// under the configured folder. Sign-out is deferred immediately after
// a successful sign-in so every exit path invalidates the session;
// its own failure is logged, never escalated.
func (p *Publisher) Publish(ctx context.Context, objectKey, localPath, runID string) (*PublishResult, error) {
	if err := p.store.Download(ctx, objectKey, localPath); err != nil {
		return nil, errors.StorageError("Failed to fetch converted file", objectKey, err)
	}

	key, err := idempotencyKey(localPath)
	if err != nil {
		return nil, err
	}

	session, err := p.client.SignIn(ctx, p.cfg.Username, p.password)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := p.client.SignOut(ctx, session); err != nil {
			p.logger.Warn("dashboard sign-out failed", map[string]interface{}{
				"run_id": runID,
				"error":  err.Error(),
			})
		}
	}()

	folder, err := p.client.FindFolder(ctx, session, p.cfg.Folder)
	if err != nil {
		return nil, err
	}

	name := p.cfg.Datasource
	if name == "" {
		name = "retention"
	}

	ds, alreadyPublished, err := p.client.Upload(ctx, session, folder.ID, name, localPath, key)
	if err != nil {
		return nil, err
	}

	if alreadyPublished {
		p.logger.Info("data source already published for this content", map[string]interface{}{
			"run_id":     runID,
			"datasource": name,
		})
	}

	return &PublishResult{
		DataSource:       ds.Name,
		Folder:           folder.Name,
		AlreadyPublished: alreadyPublished,
	}, nil
}

// idempotencyKey derives the upload key from the file content alone.
// Retrying a partially failed publish, even from a fresh run, cannot
// register the same content twice.
func idempotencyKey(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeFileNotFound, "Converted file missing").
			WithContext("path", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to hash converted file")
	}

	return fmt.Sprintf("sha256-%s", hex.EncodeToString(h.Sum(nil))), nil
}
