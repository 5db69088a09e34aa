package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
)

const defaultBaseURL = "http://localhost:9091"

// Client is an HTTP client for the download agent that owns the actual
// file transfers. The agent exposes a small JSON API:
//
//	POST /downloads           start or redirect a download
//	DELETE /downloads/{id}    cancel a download
//	GET /downloads/{id}       current transfer state
type Client struct {
	baseURL string
	http    *http.Client
}

type Config struct {
	BaseURL string
	Client  *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

type startRequest struct {
	FileID   string `json:"fileId"`
	Offset   int64  `json:"offset"`
	Limit    int64  `json:"limit,omitempty"`
	Priority string `json:"priority"`
}

type statusResponse struct {
	Offset     int64  `json:"offset"`
	PrefixSize int64  `json:"prefixSize"`
	LocalPath  string `json:"localPath"`
	Completed  bool   `json:"completed"`
}

func (c *Client) StartDownload(ctx context.Context, id domain.FileID, offset, limit int64, prio domain.Priority) error {
	payload, err := json.Marshal(startRequest{
		FileID:   string(id),
		Offset:   offset,
		Limit:    limit,
		Priority: prio.String(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/downloads", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return agentError("start download", resp)
	}
	return nil
}

func (c *Client) CancelDownload(ctx context.Context, id domain.FileID) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.downloadURL(id), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		// A missing download is already cancelled.
		return nil
	default:
		return agentError("cancel download", resp)
	}
}

func (c *Client) FileStatus(ctx context.Context, id domain.FileID) (domain.DownloadState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.downloadURL(id), nil)
	if err != nil {
		return domain.DownloadState{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.DownloadState{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.DownloadState{}, fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.DownloadState{}, agentError("file status", resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return domain.DownloadState{}, err
	}

	var status statusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return domain.DownloadState{}, fmt.Errorf("decode status: %w", err)
	}
	return domain.DownloadState{
		Offset:     status.Offset,
		PrefixSize: status.PrefixSize,
		LocalPath:  status.LocalPath,
		Completed:  status.Completed,
	}, nil
}

func (c *Client) downloadURL(id domain.FileID) string {
	return c.baseURL + "/downloads/" + url.PathEscape(string(id))
}

func agentError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%s: agent HTTP %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}

var _ ports.RemoteClient = (*Client)(nil)
