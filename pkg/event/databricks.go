package event

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"advoid/pkg/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenRefreshMargin renews the OAuth token this long before it expires so
// an upload never races expiry.
const tokenRefreshMargin = 60 * time.Second

// DatabricksUploader writes batches to a Unity Catalog volume through the
// Files API, authenticating with a client-credentials bearer token. The
// token is cached and refreshed proactively.
type DatabricksUploader struct {
	httpClient *http.Client
	host       string
	volumePath string
}

// NewDatabricksUploader builds the OAuth2 client for the workspace's
// /oidc/v1/token endpoint. Token caching and refresh ride on the oauth2
// transport.
func NewDatabricksUploader(ctx context.Context, cfg config.DatabricksConfig) *DatabricksUploader {
	host := strings.TrimRight(cfg.Host, "/")

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     host + "/oidc/v1/token",
		Scopes:       []string{"all-apis"},
	}

	source := oauth2.ReuseTokenSourceWithExpiry(nil, cc.TokenSource(ctx), tokenRefreshMargin)

	return &DatabricksUploader{
		httpClient: oauth2.NewClient(ctx, source),
		host:       host,
		volumePath: strings.TrimRight(cfg.VolumePath, "/"),
	}
}

// Upload puts one payload at {volume}/kind/YYYY-MM-DD/<id>.json. A token
// refresh failure surfaces here as an upload error; the batch is dropped
// and the next flush retries the grant.
func (u *DatabricksUploader) Upload(ctx context.Context, kind string, payload []byte) error {
	path := fmt.Sprintf("%s/%s/%s.json", kind, time.Now().UTC().Format("2006-01-02"), NewID())
	url := fmt.Sprintf("%s/api/2.0/fs/files%s/%s", u.host, u.volumePath, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload to databricks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("databricks upload failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return nil
}
