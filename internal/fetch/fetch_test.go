package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"
)

// Minimal PNG signature plus some of an IHDR chunk, enough for content sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func TestNewClient(t *testing.T) {
	assert := assert_.New(t)

	_, err := NewClient("127.0.0.1:8000")
	assert.Error(err)
	_, err = NewClient("/relative")
	assert.Error(err)

	c, err := NewClient("http://127.0.0.1:8000/")
	if assert.Nil(err) {
		assert.Equal(
			"http://127.0.0.1:8000/api/download?url=https%3A%2F%2Fx.com%2Fuser%2Fstatus%2F1%3Fs%3D20%26t%3Dabc",
			c.Endpoint("https://x.com/user/status/1?s=20&t=abc"),
		)
	}

	c, err = NewClient("https://saver.example.com/backend")
	if assert.Nil(err) {
		assert.Equal(
			"https://saver.example.com/backend/api/download?url=https%3A%2F%2Ffb.watch%2Fabc%2F",
			c.Endpoint("https://fb.watch/abc/"),
		)
	}
}

func TestClient_Request(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)

	requests := make(chan *http.Request, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Clone(context.Background())
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition", `attachment; filename="photo.mp4"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(pngBytes)))
		_, _ = w.Write(pngBytes)
	}))
	defer server.Close()

	c, err := NewClient(server.URL)
	require.Nil(err)

	type call struct{ downloaded, expected int64 }
	var calls []call
	before := time.Now()
	raw, err := c.Request(context.Background(), DownloadRequest{SourceURL: "https://www.instagram.com/p/abc/"},
		func(downloaded, expected int64) {
			calls = append(calls, call{downloaded, expected})
		})
	require.Nil(err)

	got := <-requests
	assert.Equal(DownloadPath, got.URL.Path)
	assert.Equal("https://www.instagram.com/p/abc/", got.URL.Query().Get("url"))
	assert.Equal("*/*", got.Header.Get("Accept"))

	assert.True(raw.OK())
	assert.Equal(http.StatusOK, raw.StatusCode)
	assert.Equal(pngBytes, raw.Body)
	assert.Equal("image/png", raw.HeaderType)
	assert.Equal("image/png", raw.ContainerType)
	assert.Equal(`attachment; filename="photo.mp4"`, raw.ContentDisposition)
	assert.False(raw.ReceivedAt.Before(before))

	require.NotEmpty(calls)
	assert.Equal(call{0, int64(len(pngBytes))}, calls[0], "first report should be on headers")
	assert.Equal(call{int64(len(pngBytes)), int64(len(pngBytes))}, calls[len(calls)-1])
}

func TestClient_Request_ErrorStatus(t *testing.T) {
	assert := assert_.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Not found"}`))
	}))
	defer server.Close()

	c, err := NewClient(server.URL)
	assert.Nil(err)
	raw, err := c.Request(context.Background(), DownloadRequest{SourceURL: "https://x.com/a/status/1"}, nil)
	if assert.Nil(err, "error statuses are not transport errors") {
		assert.False(raw.OK())
		assert.Equal(http.StatusNotFound, raw.StatusCode)
		assert.Equal(`{"detail":"Not found"}`, string(raw.Body))
		assert.Equal("", raw.ContainerType)
		assert.Equal("", raw.ContentDisposition)
	}
}

func TestClient_Request_ConnectionFailed(t *testing.T) {
	assert := assert_.New(t)
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	c, err := NewClient(baseURL)
	assert.Nil(err)
	_, err = c.Request(context.Background(), DownloadRequest{SourceURL: "https://x.com/a/status/1"}, nil)
	assert.ErrorIs(err, ErrConnectionFailed)
}

func TestClient_Request_HugeContentLength(t *testing.T) {
	assert := assert_.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Type: video/mp4\r\nContent-Length: 1099511627776\r\n\r\nabc"))
	}))
	defer server.Close()

	c, err := NewClient(server.URL)
	assert.Nil(err)
	var last int64
	_, err = c.Request(context.Background(), DownloadRequest{SourceURL: "https://x.com/a/status/1"},
		func(downloaded, expected int64) {
			last = downloaded
		})
	assert.ErrorIs(err, ErrConnectionFailed)
	assert.Equal(int64(3), last)
}

func TestClient_Request_Timeout(t *testing.T) {
	assert := assert_.New(t)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c, err := NewClient(server.URL, WithTimeout(50*time.Millisecond))
	assert.Nil(err)
	_, err = c.Request(context.Background(), DownloadRequest{SourceURL: "https://x.com/a/status/1"}, nil)
	assert.ErrorIs(err, ErrConnectionFailed)
	assert.ErrorIs(err, context.DeadlineExceeded)
}

func TestClient_Request_Cancelled(t *testing.T) {
	assert := assert_.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	c, err := NewClient(server.URL)
	assert.Nil(err)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = c.Request(ctx, DownloadRequest{SourceURL: "https://x.com/a/status/1"}, nil)
	assert.True(errors.Is(err, ErrConnectionFailed))
	assert.True(errors.Is(err, context.Canceled))
}

func TestSniffMediaType(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal("image/png", sniffMediaType(pngBytes))
	assert.Equal("image/gif", sniffMediaType([]byte("GIF89a\x01\x00\x01\x00")))
	assert.Equal("image/jpeg", sniffMediaType([]byte("\xff\xd8\xff\xe0\x00\x10JFIF")))
	assert.Equal("video/mp4", sniffMediaType([]byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom")))
	assert.Equal("", sniffMediaType([]byte(`{"detail":"Not found"}`)))
	assert.Equal("", sniffMediaType([]byte("plain text")))
	assert.Equal("", sniffMediaType(nil))
}
