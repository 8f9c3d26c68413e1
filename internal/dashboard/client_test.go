package dashboard

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retflow/internal/testutil"
	"retflow/pkg/errors"
	"retflow/pkg/models"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(models.Dashboard{BaseURL: baseURL, Timeout: "5s"})
	require.NoError(t, err)
	return client
}

func TestSignInAndOut(t *testing.T) {
	server := testutil.NewDashboardServer(t)
	client := testClient(t, server.URL)
	ctx := context.Background()

	session, err := client.SignIn(ctx, "publisher", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", session.Token)
	assert.Equal(t, "site-1", session.SiteID)

	require.NoError(t, client.SignOut(ctx, session))
	assert.Equal(t, 1, server.SignOuts())
}

func TestSignInRejected(t *testing.T) {
	server := testutil.NewDashboardServer(t)
	server.RejectSignIn()
	client := testClient(t, server.URL)

	_, err := client.SignIn(context.Background(), "publisher", "wrong")
	require.Error(t, err)

	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeDashboardAuth, appErr.Code)
	// The server's error text is carried for diagnosis
	assert.Contains(t, appErr.Context["response"], "invalid credentials")
}

func TestFindFolder(t *testing.T) {
	server := testutil.NewDashboardServer(t)
	client := testClient(t, server.URL)
	ctx := context.Background()

	session, err := client.SignIn(ctx, "publisher", "secret")
	require.NoError(t, err)

	folder, err := client.FindFolder(ctx, session, "Analytics")
	require.NoError(t, err)
	assert.Equal(t, "f-1", folder.ID)

	_, err = client.FindFolder(ctx, session, "Missing")
	require.Error(t, err)
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeFolderNotFound, appErr.Code)
}

func TestUpload(t *testing.T) {
	server := testutil.NewDashboardServer(t)
	client := testClient(t, server.URL)
	ctx := context.Background()

	session, err := client.SignIn(ctx, "publisher", "secret")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "retention.db")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0600))

	ds, already, err := client.Upload(ctx, session, "f-1", "retention", path, "sha256-abc")
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, "retention", ds.Name)

	// Same idempotency key: the server answers 409, reported as
	// already published rather than an error
	ds, already, err = client.Upload(ctx, session, "f-1", "retention", path, "sha256-abc")
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, "retention", ds.Name)
}

func TestUploadRejected(t *testing.T) {
	server := testutil.NewDashboardServer(t)
	server.FailUploads(http.StatusBadRequest)
	client := testClient(t, server.URL)
	ctx := context.Background()

	session, err := client.SignIn(ctx, "publisher", "secret")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "retention.db")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0600))

	_, _, err = client.Upload(ctx, session, "f-1", "retention", path, "sha256-abc")
	require.Error(t, err)
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeUploadFailed, appErr.Code)
}

func TestNewClientInvalidTimeout(t *testing.T) {
	_, err := NewClient(models.Dashboard{BaseURL: "http://example.com", Timeout: "soon"})
	assert.Error(t, err)
}
