package dashboard

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retflow/internal/storage"
	"retflow/internal/testutil"
	"retflow/pkg/errors"
	"retflow/pkg/models"
)

const convertedKey = "retention/converted/retention.db"

func publisherFixture(t *testing.T, server *testutil.DashboardServer) (*Publisher, string) {
	t.Helper()

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "retention.db")
	require.NoError(t, os.WriteFile(src, []byte("analytic content"), 0600))
	require.NoError(t, store.Upload(context.Background(), src, convertedKey))

	cfg := models.Dashboard{
		BaseURL:  server.URL,
		Username: "publisher",
		Folder:   "Analytics",
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)

	workDir := t.TempDir()
	return NewPublisher(client, store, cfg, "secret", nil), workDir
}

func TestPublish(t *testing.T) {
	server := testutil.NewDashboardServer(t)
	pub, workDir := publisherFixture(t, server)

	result, err := pub.Publish(context.Background(), convertedKey, filepath.Join(workDir, "retention.db"), "run-1")
	require.NoError(t, err)

	assert.Equal(t, "retention", result.DataSource)
	assert.Equal(t, "Analytics", result.Folder)
	assert.False(t, result.AlreadyPublished)
	assert.Equal(t, 1, server.Uploads())
	// The session is always closed
	assert.Equal(t, 1, server.SignOuts())
}

func TestPublishIdempotent(t *testing.T) {
	server := testutil.NewDashboardServer(t)
	pub, workDir := publisherFixture(t, server)
	ctx := context.Background()

	first, err := pub.Publish(ctx, convertedKey, filepath.Join(workDir, "a.db"), "run-1")
	require.NoError(t, err)
	assert.False(t, first.AlreadyPublished)

	// A fresh run with identical content hashes to the same key; the
	// server's 409 is surfaced as success
	second, err := pub.Publish(ctx, convertedKey, filepath.Join(workDir, "b.db"), "run-2")
	require.NoError(t, err)
	assert.True(t, second.AlreadyPublished)
}

func TestPublishAuthFailureHaltsEarly(t *testing.T) {
	server := testutil.NewDashboardServer(t)
	server.RejectSignIn()
	pub, workDir := publisherFixture(t, server)

	_, err := pub.Publish(context.Background(), convertedKey, filepath.Join(workDir, "retention.db"), "run-1")
	require.Error(t, err)

	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeDashboardAuth, appErr.Code)

	// Neither folder lookup nor upload was attempted, and there is no
	// session to sign out of
	assert.Equal(t, 0, server.Uploads())
	assert.Equal(t, 0, server.SignOuts())
}

func TestPublishMissingFolderHaltsBeforeUpload(t *testing.T) {
	server := testutil.NewDashboardServer(t)
	server.ClearFolders()
	pub, workDir := publisherFixture(t, server)

	_, err := pub.Publish(context.Background(), convertedKey, filepath.Join(workDir, "retention.db"), "run-1")
	require.Error(t, err)

	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeFolderNotFound, appErr.Code)

	assert.Equal(t, 0, server.Uploads())
	// The session opened before the lookup is still closed
	assert.Equal(t, 1, server.SignOuts())
}

func TestPublishSignOutFailureIsNonFatal(t *testing.T) {
	server := testutil.NewDashboardServer(t)
	server.FailSignOut()
	pub, workDir := publisherFixture(t, server)

	result, err := pub.Publish(context.Background(), convertedKey, filepath.Join(workDir, "retention.db"), "run-1")
	require.NoError(t, err)
	assert.False(t, result.AlreadyPublished)
	assert.Equal(t, 1, server.SignOuts())
}

func TestPublishMissingObject(t *testing.T) {
	server := testutil.NewDashboardServer(t)
	pub, workDir := publisherFixture(t, server)

	_, err := pub.Publish(context.Background(), "retention/converted/absent.db", filepath.Join(workDir, "retention.db"), "run-1")
	require.Error(t, err)
	// Nothing touched the dashboard server
	assert.Equal(t, 0, server.SignIns())
}
