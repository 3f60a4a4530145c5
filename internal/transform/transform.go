// Package transform adapts the external photo transformation service to the
// pipeline. All calls go through the bounded retry executor; a call that
// keeps failing transiently surfaces as remote.ErrUnavailable.
package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lumiprint/backend/internal/remote"
)

const requestTimeout = 30 * time.Second

// Client calls the transformation service over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
	exec     *remote.Executor
	log      *slog.Logger
}

func NewClient(endpoint string, exec *remote.Executor, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: requestTimeout},
		exec:     exec,
		log:      log,
	}
}

type transformRequest struct {
	InputPath  string `json:"input_path"`
	Kind       string `json:"kind"`
	Layout     string `json:"layout"`
	OutputPath string `json:"output_path"`
}

type transformResponse struct {
	Error string `json:"error,omitempty"`
}

// Transform submits one job and blocks until the service answers. A non-2xx
// answer is a permanent failure for this job; only transport-level errors are
// retried.
func (c *Client) Transform(ctx context.Context, inputPath, kind, layout, outputPath string) error {
	body, err := json.Marshal(transformRequest{
		InputPath:  inputPath,
		Kind:       kind,
		Layout:     layout,
		OutputPath: outputPath,
	})
	if err != nil {
		return fmt.Errorf("encode transform request: %w", err)
	}

	return c.exec.Do(ctx, "transform.apply", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var answer transformResponse
		if json.Unmarshal(raw, &answer) == nil && answer.Error != "" {
			return fmt.Errorf("transformation failed: %s", answer.Error)
		}
		return fmt.Errorf("transformation failed: status %d", resp.StatusCode)
	})
}
