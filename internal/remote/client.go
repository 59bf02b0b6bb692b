package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DefaultUserAgent identifies swiftly to upstream hosts.
const DefaultUserAgent = "swiftly/1.0"

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

// Logger is the minimal logging interface used by the client.
type Logger interface {
	Printf(format string, v ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// Progress is one download progress event. Total is -1 when the server
// did not announce a length.
type Progress struct {
	Received int64
	Total    int64
}

// Fraction returns the completed share in [0,1], or -1 when unknown.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return -1
	}
	f := float64(p.Received) / float64(p.Total)
	if f > 1 {
		f = 1
	}
	return f
}

// Client performs HTTP requests against upstream hosts.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	// HTMLIsNotFound makes Download treat an HTML response as a missing
	// archive. download.swift.org serves an HTML page for unknown paths.
	HTMLIsNotFound bool
	// JSONTimeout bounds a whole FetchJSON request, body included.
	JSONTimeout time.Duration
	Logger      Logger
}

// NewClient returns a client with the given request timeout.
func NewClient(timeout time.Duration, logger Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Client{
		// The timeout bounds connection setup and headers; archive bodies
		// can take far longer and are bounded by the context instead.
		HTTP: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: timeout,
			TLSHandshakeTimeout:   timeout,
		}},
		UserAgent:      DefaultUserAgent,
		HTMLIsNotFound: true,
		JSONTimeout:    timeout,
		Logger:         logger,
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) logf(format string, v ...any) {
	if c.Logger != nil {
		c.Logger.Printf(format, v...)
	}
}

func (c *Client) get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{URL: url, Err: err}
	}
	return resp, nil
}

func statusError(url string, resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return &NotFoundError{URL: url}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &TransportError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
}

// FetchJSON issues a GET request and decodes the JSON body into T.
func FetchJSON[T any](ctx context.Context, c *Client, url string, headers map[string]string) (T, error) {
	var out T
	if c.JSONTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.JSONTimeout)
		defer cancel()
	}
	resp, err := c.get(ctx, url, headers)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, statusError(url, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, &TransportError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return out, nil
}

// Download fetches url into dest. The body is written to a sibling temp
// file that is renamed into place only after it is complete, so dest is
// either absent or whole. onProgress, when set, receives events in order
// on the calling goroutine.
func (c *Client) Download(ctx context.Context, url, dest string, onProgress func(Progress)) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("prepare download destination: %w", err)
	}

	resp, err := c.get(ctx, url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(url, resp)
	}
	if c.HTMLIsNotFound && isHTML(resp.Header.Get("Content-Type")) {
		c.logf("download %s: html response treated as missing archive", url)
		return &NotFoundError{URL: url}
	}

	total := resp.ContentLength
	if total < 0 {
		total = -1
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(dest), "download-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	var src io.Reader = resp.Body
	if onProgress != nil {
		onProgress(Progress{Received: 0, Total: total})
		src = &progressReader{r: resp.Body, total: total, report: onProgress}
	}

	written, err := io.Copy(tmpFile, src)
	if err != nil {
		tmpFile.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &TransportError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("write temp file: %w", err)}
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if total > 0 && written != total {
		return &TransportError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("short body: got %d of %d bytes", written, total)}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}
	c.logf("downloaded %s (%d bytes) to %s", url, written, dest)
	return nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html"
}

// progressReader reports cumulative bytes after every read. Events are
// throttled so a fast local transfer does not flood the renderer.
type progressReader struct {
	r        io.Reader
	total    int64
	received int64
	last     time.Time
	report   func(Progress)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.received += int64(n)
	done := errors.Is(err, io.EOF)
	if n > 0 || done {
		now := time.Now()
		if done || now.Sub(p.last) >= 50*time.Millisecond || p.received == p.total {
			p.last = now
			p.report(Progress{Received: p.received, Total: p.total})
		}
	}
	return n, err
}
