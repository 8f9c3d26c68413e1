// Package dashboard is the REST client for the visualization server:
// sign-in, folder lookup, data source upload, sign-out.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"retflow/pkg/errors"
	"retflow/pkg/models"
)

// Session is the authenticated state returned by SignIn and threaded
// explicitly through every subsequent call.
type Session struct {
	Token  string
	SiteID string
}

// Folder is a server-side destination folder.
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DataSource is the server-side registration of an uploaded file.
type DataSource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client talks to the dashboard server.
type Client struct {
	baseURL    string
	site       string
	httpClient *http.Client
}

// NewClient creates a dashboard client from the config.
func NewClient(cfg models.Dashboard) (*Client, error) {
	timeout := 30 * time.Second
	if cfg.Timeout != "" {
		parsed, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, errors.ConfigError(
				fmt.Sprintf("Invalid dashboard timeout %q", cfg.Timeout), "dashboard.timeout")
		}
		timeout = parsed
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		site:       cfg.Site,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Site     string `json:"site,omitempty"`
}

type signInResponse struct {
	Token  string `json:"token"`
	SiteID string `json:"site_id"`
}

// SignIn authenticates and returns the session. Any non-success status
// aborts with the server's error text.
func (c *Client) SignIn(ctx context.Context, username, password string) (*Session, error) {
	body, err := json.Marshal(signInRequest{Username: username, Password: password, Site: c.site})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "Failed to encode sign-in request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/signin", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "Failed to build sign-in request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNetworkUnavailable, "Dashboard server unreachable").
			WithContext("url", c.baseURL).
			AsRecoverable()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ErrCodeDashboardAuth, "Dashboard sign-in failed").
			WithContext("status_code", resp.StatusCode).
			WithContext("response", readBody(resp.Body)).
			WithSuggestions(
				"Verify the dashboard username and stored password",
				"Run 'retflow secret set dashboard' to update the credential",
			)
	}

	var parsed signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDashboardResponse, "Invalid sign-in response")
	}
	if parsed.Token == "" {
		return nil, errors.New(errors.ErrCodeDashboardResponse, "Sign-in response carried no session token")
	}

	return &Session{Token: parsed.Token, SiteID: parsed.SiteID}, nil
}

type foldersResponse struct {
	Folders []Folder `json:"folders"`
}

// Folders lists the destination folders visible to the session.
func (c *Client) Folders(ctx context.Context, session *Session) ([]Folder, error) {
	url := fmt.Sprintf("%s/api/sites/%s/folders", c.baseURL, session.SiteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "Failed to build folder request")
	}
	req.Header.Set("X-Auth-Token", session.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNetworkUnavailable, "Folder listing failed").
			AsRecoverable()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.DashboardError("Folder listing rejected", resp.StatusCode, readBody(resp.Body))
	}

	var parsed foldersResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDashboardResponse, "Invalid folder listing response")
	}
	return parsed.Folders, nil
}

// FindFolder resolves a folder by exact name. An absent folder is a
// typed error; publish aborts on it without attempting the upload.
func (c *Client) FindFolder(ctx context.Context, session *Session, name string) (*Folder, error) {
	folders, err := c.Folders(ctx, session)
	if err != nil {
		return nil, err
	}

	for i := range folders {
		if folders[i].Name == name {
			return &folders[i], nil
		}
	}

	return nil, errors.New(errors.ErrCodeFolderNotFound,
		fmt.Sprintf("No folder named %q on the dashboard server", name)).
		WithContext("folders_visible", len(folders)).
		WithSuggestions(
			"Create the folder on the dashboard server first",
			"Check the 'dashboard.folder' configuration value",
		)
}

// Upload registers the local file as a new data source under the
// folder. The idempotency key makes re-running a failed publish safe:
// a 409 means this exact content was already registered and is treated
// as success.
func (c *Client) Upload(ctx context.Context, session *Session, folderID, name, filePath, idempotencyKey string) (*DataSource, bool, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeFileNotFound, "Converted file missing").
			WithContext("path", filePath)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	meta, err := writer.CreateFormField("metadata")
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeInternal, "Failed to build upload body")
	}
	if err := json.NewEncoder(meta).Encode(map[string]string{
		"name":      name,
		"folder_id": folderID,
	}); err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeInternal, "Failed to encode upload metadata")
	}

	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeInternal, "Failed to build upload body")
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to read converted file").
			WithContext("path", filePath)
	}
	if err := writer.Close(); err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeInternal, "Failed to finalize upload body")
	}

	url := fmt.Sprintf("%s/api/sites/%s/datasources", c.baseURL, session.SiteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeInternal, "Failed to build upload request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Auth-Token", session.Token)
	req.Header.Set("X-Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeUploadFailed, "Data source upload failed").
			AsRecoverable()
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var parsed DataSource
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, false, errors.Wrap(err, errors.ErrCodeDashboardResponse, "Invalid upload response")
		}
		return &parsed, false, nil
	case http.StatusConflict:
		// Already registered under this idempotency key.
		return &DataSource{Name: name}, true, nil
	default:
		return nil, false, errors.New(errors.ErrCodeUploadFailed, "Data source upload rejected").
			WithContext("status_code", resp.StatusCode).
			WithContext("response", readBody(resp.Body))
	}
}

// SignOut invalidates the session. Best-effort: callers log the error
// but never escalate it.
func (c *Client) SignOut(ctx context.Context, session *Session) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/signout", nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "Failed to build sign-out request")
	}
	req.Header.Set("X-Auth-Token", session.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSignOutFailed, "Sign-out request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return errors.New(errors.ErrCodeSignOutFailed, "Sign-out rejected").
			WithContext("status_code", resp.StatusCode)
	}
	return nil
}

func readBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4096))
	return strings.TrimSpace(string(body))
}
