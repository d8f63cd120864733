package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Fetch downloads a remote dataset to cachePath and returns the local
// path. The trainer accepts either a local file or an HTTP(S) URL; this is
// the URL half. The download goes to a temp file first so an interrupted
// transfer never leaves a truncated dataset behind.
func Fetch(ctx context.Context, url, cachePath string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return "", fmt.Errorf("dataset: create cache dir: %w", err)
	}

	tmp := cachePath + ".download"
	client := resty.New().SetTimeout(timeout)

	resp, err := client.R().
		SetContext(ctx).
		SetOutput(tmp).
		Get(url)
	if err != nil {
		return "", fmt.Errorf("dataset: fetch %s: %w", url, err)
	}
	if resp.IsError() {
		os.Remove(tmp)
		return "", fmt.Errorf("dataset: fetch %s: status %d", url, resp.StatusCode())
	}

	if err := os.Rename(tmp, cachePath); err != nil {
		return "", fmt.Errorf("dataset: finalize download: %w", err)
	}

	log.Info().Str("url", url).Str("path", cachePath).Msg("dataset downloaded")
	return cachePath, nil
}
