package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadWritesFileAndReportsProgress(t *testing.T) {
	payload := strings.Repeat("x", 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "dl", "toolchain.tar.gz")
	client := NewClient(5*time.Second, nil)

	var events []Progress
	err := client.Download(context.Background(), srv.URL+"/a.tar.gz", dest, func(p Progress) {
		events = append(events, p)
	})
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))

	require.NotEmpty(t, events)
	assert.Equal(t, int64(0), events[0].Received)
	last := events[len(events)-1]
	assert.Equal(t, int64(len(payload)), last.Received)
	assert.Equal(t, int64(len(payload)), last.Total)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Received, events[i-1].Received)
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(dest), "download-*.tmp"))
	assert.Empty(t, leftovers)
}

func TestDownloadUnknownLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("chunk-one"))
		flusher.Flush()
		_, _ = w.Write([]byte("chunk-two"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out")
	var events []Progress
	err := NewClient(5*time.Second, nil).Download(context.Background(), srv.URL, dest, func(p Progress) {
		events = append(events, p)
	})
	require.NoError(t, err)
	require.NotEmpty(t, events)
	for _, e := range events {
		assert.Equal(t, int64(-1), e.Total)
	}
	assert.Equal(t, float64(-1), events[0].Fraction())
	assert.Equal(t, int64(len("chunk-onechunk-two")), events[len(events)-1].Received)
}

func TestDownloadNotFound(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusGone} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		dest := filepath.Join(t.TempDir(), "out")
		err := NewClient(5*time.Second, nil).Download(context.Background(), srv.URL+"/missing", dest, nil)
		srv.Close()

		var nf *NotFoundError
		require.True(t, errors.As(err, &nf), "status %d: %v", status, err)
		assert.Equal(t, srv.URL+"/missing", nf.URL)
		_, statErr := os.Stat(dest)
		assert.True(t, os.IsNotExist(statErr))
	}
}

func TestDownloadHTMLIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>nope</html>"))
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, nil)
	dest := filepath.Join(t.TempDir(), "out")
	err := client.Download(context.Background(), srv.URL, dest, nil)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	client.HTMLIsNotFound = false
	require.NoError(t, client.Download(context.Background(), srv.URL, dest, nil))
}

func TestDownloadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewClient(5*time.Second, nil).Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "out"), nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Contains(t, te.Error(), "overloaded")
}

func TestDownloadUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient(time.Second, nil).Download(context.Background(), url, filepath.Join(t.TempDir(), "out"), nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
}

func TestFetchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"swift","count":3}`))
	}))
	defer srv.Close()

	type doc struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	got, err := FetchJSON[doc](context.Background(), NewClient(time.Second, nil), srv.URL, map[string]string{"X-Test": "yes"})
	require.NoError(t, err)
	assert.Equal(t, doc{Name: "swift", Count: 3}, got)
}

func TestFetchJSONDecodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := FetchJSON[map[string]any](context.Background(), NewClient(time.Second, nil), srv.URL, nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusOK, te.StatusCode)
}

func TestFetchJSONTimesOutOnStalledBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{`))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	_, err := FetchJSON[[]map[string]any](context.Background(), NewClient(200*time.Millisecond, nil), srv.URL, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
