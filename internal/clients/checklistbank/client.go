package checklistbank

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/biologidex-backend/internal/pkg/httpx"
	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
)

const (
	defaultBaseURL    = "https://api.checklistbank.org"
	discoveryLimit    = 5
	downloadTimeout   = 5 * time.Minute
	discoveryTimeout  = 30 * time.Second
	discoveryAttempts = 3
)

// statusError preserves the upstream HTTP status for retry decisions.
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string       { return fmt.Sprintf("%s: status %d", e.url, e.code) }
func (e *statusError) HTTPStatusCode() int { return e.code }

// Dataset is one ChecklistBank release of the Catalogue of Life.
type Dataset struct {
	Key     int    `json:"key"`
	Title   string `json:"title"`
	Version string `json:"version"`
	Origin  string `json:"origin"`
	Created string `json:"created"`
}

type datasetPage struct {
	Result []Dataset `json:"result"`
	Total  int       `json:"total"`
}

// Client talks to the ChecklistBank API: release discovery, export
// availability probes, and ColDP archive downloads.
type Client interface {
	// LatestRelease returns the newest COL release that has a ColDP
	// export available.
	LatestRelease(ctx context.Context) (*Dataset, error)
	GetDataset(ctx context.Context, key int) (*Dataset, error)
	// DownloadArchive streams the dataset's ColDP zip export to destPath.
	// An existing file at destPath is reused when it is a readable zip.
	// progress, when non-nil, receives cumulative bytes written.
	DownloadArchive(ctx context.Context, datasetKey int, destPath string, progress func(written int64)) error
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

func NewClient(log *logger.Logger) Client {
	baseURL := strings.TrimSpace(os.Getenv("CHECKLISTBANK_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &client{
		log:        log.With("service", "ChecklistBankClient"),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: downloadTimeout},
	}
}

func (c *client) exportURL(datasetKey int) string {
	return fmt.Sprintf("%s/dataset/%d/export.zip?format=ColDP", c.baseURL, datasetKey)
}

// getJSON fetches and decodes a discovery endpoint, retrying transient
// failures with jittered backoff and honoring Retry-After.
func (c *client) getJSON(ctx context.Context, reqURL string, out any) error {
	var lastErr error
	wait := time.Duration(0)
	for attempt := 0; attempt < discoveryAttempts; attempt++ {
		if wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if !httpx.IsRetryableError(err) {
				return err
			}
			wait = httpx.JitterSleep(time.Duration(attempt+1) * 2 * time.Second)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			err = json.NewDecoder(resp.Body).Decode(out)
			_ = resp.Body.Close()
			if err != nil {
				return fmt.Errorf("decode %s: %w", reqURL, err)
			}
			return nil
		}

		lastErr = &statusError{url: reqURL, code: resp.StatusCode}
		if !httpx.IsRetryableHTTPStatus(resp.StatusCode) {
			_ = resp.Body.Close()
			return lastErr
		}
		wait = httpx.RetryAfterDuration(resp, httpx.JitterSleep(time.Duration(attempt+1)*2*time.Second), 30*time.Second)
		_ = resp.Body.Close()
	}
	return lastErr
}

func (c *client) LatestRelease(ctx context.Context) (*Dataset, error) {
	q := url.Values{}
	q.Set("origin", "RELEASE")
	q.Set("sortBy", "CREATED")
	q.Set("reverse", "true")
	q.Set("limit", strconv.Itoa(discoveryLimit))

	listURL := c.baseURL + "/dataset?" + q.Encode()
	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	var page datasetPage
	if err := c.getJSON(ctx, listURL, &page); err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	if len(page.Result) == 0 {
		return nil, fmt.Errorf("no releases returned")
	}

	// Newest first; take the first release whose ColDP export responds.
	for i := range page.Result {
		ds := page.Result[i]
		ok, probeErr := c.probeExport(ctx, ds.Key)
		if probeErr != nil {
			c.log.Warn("export probe failed", "dataset_key", ds.Key, "error", probeErr)
			continue
		}
		if ok {
			return &ds, nil
		}
	}
	return nil, fmt.Errorf("none of the latest %d releases has a ColDP export", len(page.Result))
}

func (c *client) probeExport(ctx context.Context, datasetKey int) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.exportURL(datasetKey), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (c *client) GetDataset(ctx context.Context, key int) (*Dataset, error) {
	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	var ds Dataset
	err := c.getJSON(ctx, fmt.Sprintf("%s/dataset/%d", c.baseURL, key), &ds)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, fmt.Errorf("dataset %d not found", key)
		}
		return nil, fmt.Errorf("get dataset %d: %w", key, err)
	}
	return &ds, nil
}

func (c *client) DownloadArchive(ctx context.Context, datasetKey int, destPath string, progress func(written int64)) error {
	if isReadableZip(destPath) {
		c.log.Info("reusing existing archive", "path", destPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.exportURL(datasetKey), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download export %d: %w", datasetKey, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download export %d: status %d", datasetKey, resp.StatusCode)
	}

	tmpPath := destPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	var written int64
	buf := make([]byte, 1<<20)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				_ = out.Close()
				_ = os.Remove(tmpPath)
				return writeErr
			}
			written += int64(n)
			if progress != nil {
				progress(written)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = out.Close()
			_ = os.Remove(tmpPath)
			return fmt.Errorf("download export %d: %w", datasetKey, readErr)
		}
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if !isReadableZip(tmpPath) {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("downloaded export %d is not a valid zip", datasetKey)
	}
	return os.Rename(tmpPath, destPath)
}

// isReadableZip reports whether path exists and opens as a zip archive.
func isReadableZip(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return false
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	_ = zr.Close()
	return true
}
