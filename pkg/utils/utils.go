// Package utils holds small shared helpers used across packages that would
// otherwise each reimplement them (string truncation, media download).
package utils

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Truncate shortens s to at most n runes, appending a marker when it does.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// DownloadFile fetches url into a new temp file under dir (or os.TempDir()
// when dir is empty) and returns its path. Callers are responsible for
// removing the file once done with it.
func DownloadFile(url, dir string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: HTTP %d", url, resp.StatusCode)
	}

	f, err := os.CreateTemp(dir, "rotbot-dl-*"+filepath.Ext(url))
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", fmt.Errorf("writing temp file: %w", err)
	}

	return f.Name(), nil
}
