package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPEmitter posts notices to an endpoint. Every notice is also saved to
// the backup directory before sending, so a failed delivery can be replayed.
type HTTPEmitter struct {
	endpoint string
	client   *http.Client
	backup   *FileEmitter
}

// NewHTTPEmitter creates an HTTP emitter with a local file backup.
func NewHTTPEmitter(endpoint, backupDir string) (*HTTPEmitter, error) {
	backup, err := NewFileEmitter(backupDir)
	if err != nil {
		return nil, err
	}
	return &HTTPEmitter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		backup:   backup,
	}, nil
}

// EmitRunCompleted saves the notice locally, then posts it.
func (e *HTTPEmitter) EmitRunCompleted(ctx context.Context, notice *Notice) error {
	if err := e.backup.save(notice); err != nil {
		return err
	}

	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notice: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notice endpoint returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

// Close is a no-op.
func (e *HTTPEmitter) Close() error { return nil }
