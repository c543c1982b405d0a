// Package fetch asks the remote download service for the media behind a social media link.
//
// The response body is always buffered as opaque bytes: the service declares an image or video type on success and
// application/json on failure, and which one it is can only be decided after the headers have been inspected.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanbriolat/universal-saver"
)

const DownloadPath = "/api/download"

// Content-Length is only a hint, so never reserve more than this up front.
const maxPreallocate = 8 << 20

var (
	// ErrConnectionFailed covers every failure to get a complete response from the service.
	ErrConnectionFailed = errors.New("cannot reach download service")
)

// ProgressFunc is called once when the response headers arrive (downloaded is 0) and then as the body is received.
// expected is -1 if the service didn't send a Content-Length.
type ProgressFunc func(downloaded int64, expected int64)

// DownloadRequest is a single request for the media behind SourceURL.
type DownloadRequest struct {
	SourceURL string
}

// RawResponse is everything the service sent back, before any interpretation.
type RawResponse struct {
	StatusCode int
	Body       []byte
	// Media type of the payload itself, as sniffed from its leading bytes. Empty unless it's an image or video type.
	ContainerType string
	// The Content-Type header as sent.
	HeaderType string
	// The Content-Disposition header as sent, empty if absent.
	ContentDisposition string
	// When the response headers arrived.
	ReceivedAt time.Time
}

// OK returns true for a 2xx status.
func (r *RawResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout limits how long a whole request, including receiving the body, may take. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.timeout = d
	}
}

func WithUserAgent(ua string) Option {
	return func(client *Client) {
		client.userAgent = ua
	}
}

// NewClient creates a Client for the service at baseURL, e.g. "http://127.0.0.1:8000".
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid service URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid service URL %q: must be absolute", baseURL)
	}
	c := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{},
		userAgent:  "universal-saver",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the full service URL used to request sourceURL.
func (c *Client) Endpoint(sourceURL string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + DownloadPath
	u.RawPath = ""
	u.RawQuery = url.Values{"url": {sourceURL}}.Encode()
	return u.String()
}

// Request performs the download and buffers the whole response. A non-2xx status is not an error: the body is
// returned for the caller to interpret. Only transport failures return an error, always wrapping ErrConnectionFailed.
func (c *Client) Request(ctx context.Context, dr DownloadRequest, progress ProgressFunc) (*RawResponse, error) {
	log := universal_saver.Logger(ctx).Sugar().Named("fetch")
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.Endpoint(dr.SourceURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	log.Debugf("GET %s", endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	raw := &RawResponse{
		StatusCode:         resp.StatusCode,
		HeaderType:         resp.Header.Get("Content-Type"),
		ContentDisposition: resp.Header.Get("Content-Disposition"),
		ReceivedAt:         time.Now(),
	}
	log.Debugf("response %d, Content-Type %q, Content-Length %d", resp.StatusCode, raw.HeaderType, resp.ContentLength)

	counter := &progressCounter{expected: resp.ContentLength, progress: progress}
	counter.report()

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		prealloc := resp.ContentLength
		if prealloc > maxPreallocate {
			prealloc = maxPreallocate
		}
		buf.Grow(int(prealloc))
	}
	_, err = io.Copy(io.MultiWriter(&buf, counter), universal_saver.NewContextReader(ctx, resp.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to receive response: %w", ErrConnectionFailed, err)
	}
	raw.Body = buf.Bytes()
	raw.ContainerType = sniffMediaType(raw.Body)
	log.Debugf("received %d bytes, sniffed %q", len(raw.Body), raw.ContainerType)
	return raw, nil
}

// sniffMediaType returns the image or video type detected from the body, or "" if it isn't recognisably either.
func sniffMediaType(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	detected := http.DetectContentType(body)
	if i := strings.IndexByte(detected, ';'); i >= 0 {
		detected = detected[:i]
	}
	detected = strings.ToLower(strings.TrimSpace(detected))
	if strings.HasPrefix(detected, "image/") || strings.HasPrefix(detected, "video/") {
		return detected
	}
	return ""
}

// progressCounter discards what it is written but reports the running byte count. It must be the last writer in an
// io.MultiWriter so that failed writes aren't counted.
type progressCounter struct {
	downloaded int64
	expected   int64
	progress   ProgressFunc
}

func (p *progressCounter) Write(b []byte) (int, error) {
	p.downloaded += int64(len(b))
	p.report()
	return len(b), nil
}

func (p *progressCounter) report() {
	if p.progress != nil {
		p.progress(p.downloaded, p.expected)
	}
}
