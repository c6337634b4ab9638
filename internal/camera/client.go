// Package camera talks to the RPi Cam Web Interface over HTTP.
package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rpicam-archiver/rpicam-archiver-go/internal/config"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/models"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/parser"
)

// StatusError is returned when the camera answers with an unexpected status.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("camera %s: unexpected status code %d", e.Op, e.Code)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// HTTPClient is the subset of *http.Client the camera client needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues listing, download and delete requests against one camera.
type Client struct {
	httpClient      HTTPClient
	baseURL         string
	previewURL      string
	requestTimeout  time.Duration
	downloadTimeout time.Duration
	chunkSize       int
}

// NewClient creates a camera client from the camera section of cfg. A nil
// httpClient means http.DefaultClient behaviour with per-request timeouts.
func NewClient(cfg *config.Config, httpClient HTTPClient) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient:      httpClient,
		baseURL:         strings.TrimRight(cfg.Camera.BaseURL, "/"),
		previewURL:      cfg.PreviewURL(),
		requestTimeout:  cfg.RequestTimeout(),
		downloadTimeout: cfg.DownloadTimeout(),
		chunkSize:       cfg.Camera.ChunkSize,
	}
}

// FetchListing downloads and parses the preview page. Any non-2xx status is
// reported as a StatusError.
func (c *Client) FetchListing(ctx context.Context) ([]models.VideoRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.previewURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: "list", Code: resp.StatusCode}
	}

	return parser.ParseListing(resp.Body)
}

// ErrIdleTimeout is returned by Download when the camera sends nothing for
// the download timeout.
var ErrIdleTimeout = errors.New("download idle timeout")

// Download streams the asset at assetPath into w in chunkSize pieces and
// returns the number of bytes written. Only 200 counts as success.
//
// The download timeout bounds the wait for the response headers and for each
// chunk, not the whole transfer, so a slow but steady stream completes.
func (c *Client) Download(ctx context.Context, assetPath string, w io.Writer) (int64, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	idle := time.AfterFunc(c.downloadTimeout, func() { cancel(ErrIdleTimeout) })
	defer idle.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.AssetURL(assetPath), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download %s: %w", assetPath, idleCause(ctx, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{Op: "download", Code: resp.StatusCode}
	}

	idle.Reset(c.downloadTimeout)
	body := &idleReader{r: resp.Body, timer: idle, timeout: c.downloadTimeout}

	n, err := copyChunked(w, body, c.chunkSize)
	if err != nil {
		return n, fmt.Errorf("failed to stream %s: %w", assetPath, idleCause(ctx, err))
	}
	return n, nil
}

// idleCause reports ErrIdleTimeout instead of the generic cancellation when
// the idle timer fired.
func idleCause(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrIdleTimeout) {
		return fmt.Errorf("%w: %v", ErrIdleTimeout, err)
	}
	return err
}

// idleReader re-arms timer every time bytes arrive.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (i *idleReader) Read(p []byte) (int, error) {
	n, err := i.r.Read(p)
	if n > 0 {
		i.timer.Reset(i.timeout)
	}
	return n, err
}

// Delete asks the camera to remove the video identified by handle.
func (c *Client) Delete(ctx context.Context, handle string) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	form := url.Values{parser.DeleteField: {handle}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.previewURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", handle, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: "delete", Code: resp.StatusCode}
	}
	return nil
}

// AssetURL resolves a server-relative asset path against the base URL.
func (c *Client) AssetURL(assetPath string) string {
	return c.baseURL + "/" + strings.TrimLeft(assetPath, "/")
}

// copyChunked copies with a fixed-size buffer. io.CopyBuffer would hand the
// work to *os.File.ReadFrom and ignore the buffer size.
func copyChunked(w io.Writer, r io.Reader, size int) (int64, error) {
	if size <= 0 {
		size = 8192
	}
	buf := make([]byte, size)
	var written int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if m != n {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
