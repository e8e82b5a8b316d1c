package download

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filedownloader/internal/apperr"
	"filedownloader/internal/config"
	"filedownloader/internal/policy"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newTestDownloader(maxSize int64, timeout time.Duration, overwrite bool) *Downloader {
	return New(policy.NewValidator(nil), Options{
		Limits: config.Limits{
			MaxFileSize:     maxSize,
			DownloadTimeout: timeout,
			MaxConcurrent:   2,
			MaxBatchSize:    2,
		},
		Overwrite: overwrite,
		Sniff:     true,
		UserAgent: "filedownloader-test",
	})
}

func newStubServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hello.txt":
			_, _ = w.Write([]byte("hello"))
		case "/noext":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngHeader)
		case "/opaque":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(pngHeader)
		case "/declared-big":
			w.Header().Set("Content-Length", "1000")
			_, _ = w.Write(bytes.Repeat([]byte("x"), 1000))
		case "/chunked-big":
			flusher := w.(http.Flusher)
			for i := 0; i < 10; i++ {
				_, _ = w.Write(bytes.Repeat([]byte("y"), 50))
				flusher.Flush()
			}
		case "/slow-headers":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		case "/slow-body":
			_, _ = w.Write([]byte("partial"))
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		case "/ua":
			_, _ = w.Write([]byte(r.UserAgent()))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDownload_Success(t *testing.T) {
	srv := newStubServer(t)
	dir := t.TempDir()
	d := newTestDownloader(1024, 2*time.Second, true)

	res, err := d.Download(context.Background(), srv.URL+"/hello.txt", dir, "greeting.txt")
	require.NoError(t, err)

	assert.Equal(t, "greeting.txt", res.Filename)
	assert.Equal(t, filepath.Join(dir, "greeting.txt"), res.FilePath)
	assert.EqualValues(t, 5, res.Bytes)
	got, err := os.ReadFile(res.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.Equal(t, []string{"greeting.txt"}, dirEntries(t, dir))
}

func TestDownload_SendsUserAgent(t *testing.T) {
	srv := newStubServer(t)
	dir := t.TempDir()
	d := newTestDownloader(1024, 2*time.Second, true)

	res, err := d.Download(context.Background(), srv.URL+"/ua", dir, "agent.txt")
	require.NoError(t, err)
	got, err := os.ReadFile(res.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "filedownloader-test", string(got))
}

func TestDownload_ExtensionInference(t *testing.T) {
	srv := newStubServer(t)
	d := newTestDownloader(1024, 2*time.Second, true)

	cases := []struct {
		name     string
		path     string
		filename string
		want     string
	}{
		{"explicit extension kept", "/noext", "report.txt", "report.txt"},
		{"url path extension", "/hello.txt", "report", "report.txt"},
		{"content type", "/noext", "report", "report.png"},
		{"sniffed payload", "/opaque", "report", "report.png"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			res, err := d.Download(context.Background(), srv.URL+tc.path, dir, tc.filename)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Filename)
			assert.FileExists(t, filepath.Join(dir, tc.want))
		})
	}
}

func TestDownload_SniffingDisabled(t *testing.T) {
	srv := newStubServer(t)
	dir := t.TempDir()
	d := newTestDownloader(1024, 2*time.Second, true)
	d.sniff = false

	res, err := d.Download(context.Background(), srv.URL+"/opaque", dir, "report")
	require.NoError(t, err)
	assert.Equal(t, "report", res.Filename)
}

func TestDownload_DeclaredLengthOverLimitWritesNothing(t *testing.T) {
	srv := newStubServer(t)
	dir := t.TempDir()
	d := newTestDownloader(100, 2*time.Second, true)

	_, err := d.Download(context.Background(), srv.URL+"/declared-big", dir, "big.bin")
	require.Error(t, err)
	assert.Equal(t, apperr.KindTooLarge, apperr.KindOf(err))
	assert.Empty(t, dirEntries(t, dir))
}

func TestDownload_StreamOverLimitRemovesPartialFile(t *testing.T) {
	srv := newStubServer(t)
	dir := t.TempDir()
	d := newTestDownloader(120, 2*time.Second, true)

	_, err := d.Download(context.Background(), srv.URL+"/chunked-big", dir, "big.bin")
	require.Error(t, err)
	assert.Equal(t, apperr.KindTooLarge, apperr.KindOf(err))
	assert.Empty(t, dirEntries(t, dir))
}

func TestDownload_ExactlyAtLimitSucceeds(t *testing.T) {
	srv := newStubServer(t)
	dir := t.TempDir()
	d := newTestDownloader(500, 2*time.Second, true)

	res, err := d.Download(context.Background(), srv.URL+"/chunked-big", dir, "big.bin")
	require.NoError(t, err)
	assert.EqualValues(t, 500, res.Bytes)
}

func TestDownload_HTTPStatus(t *testing.T) {
	srv := newStubServer(t)
	dir := t.TempDir()
	d := newTestDownloader(1024, 2*time.Second, true)

	_, err := d.Download(context.Background(), srv.URL+"/missing.pdf", dir, "missing.pdf")
	require.Error(t, err)
	assert.Equal(t, apperr.KindHTTPStatus, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "HTTP 404: Not Found")
	assert.Empty(t, dirEntries(t, dir))
}

func TestDownload_Timeout(t *testing.T) {
	srv := newStubServer(t)
	d := newTestDownloader(1024, 100*time.Millisecond, true)

	for _, path := range []string{"/slow-headers", "/slow-body"} {
		t.Run(path, func(t *testing.T) {
			dir := t.TempDir()
			start := time.Now()
			_, err := d.Download(context.Background(), srv.URL+path, dir, "slow.bin")
			require.Error(t, err)
			assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
			assert.Less(t, time.Since(start), time.Second)
			assert.Empty(t, dirEntries(t, dir))
		})
	}
}

func TestDownload_OverwriteDisabledKeepsOriginal(t *testing.T) {
	srv := newStubServer(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "greeting.txt")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0o600))
	d := newTestDownloader(1024, 2*time.Second, false)

	_, err := d.Download(context.Background(), srv.URL+"/hello.txt", dir, "greeting.txt")
	require.Error(t, err)
	assert.Equal(t, apperr.KindAlreadyExists, apperr.KindOf(err))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
	assert.Equal(t, []string{"greeting.txt"}, dirEntries(t, dir))
}

func TestDownload_OverwriteEnabledReplaces(t *testing.T) {
	srv := newStubServer(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "greeting.txt")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0o600))
	d := newTestDownloader(1024, 2*time.Second, true)

	_, err := d.Download(context.Background(), srv.URL+"/hello.txt", dir, "greeting.txt")
	require.NoError(t, err)
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestDownload_PolicyRejectsWithoutConnecting(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	d := New(policy.NewValidator([]string{"example.com"}), Options{
		Limits: config.Limits{MaxFileSize: 1024, DownloadTimeout: time.Second, MaxConcurrent: 1, MaxBatchSize: 1},
	})
	dir := t.TempDir()

	_, err := d.Download(context.Background(), srv.URL+"/a.txt", dir, "a.txt")
	assert.Equal(t, apperr.KindHostNotAllowed, apperr.KindOf(err))
	_, err = d.Download(context.Background(), "ftp://example.com/a.txt", dir, "a.txt")
	assert.Equal(t, apperr.KindSchemeNotAllowed, apperr.KindOf(err))
	_, err = d.Download(context.Background(), "not a url", dir, "a.txt")
	assert.Equal(t, apperr.KindInvalidURL, apperr.KindOf(err))

	assert.Zero(t, hits.Load())
	assert.Empty(t, dirEntries(t, dir))
}

func TestDownload_RedirectToDisallowedHostIsRejected(t *testing.T) {
	var outsideHits atomic.Int32
	outside := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outsideHits.Add(1)
		_, _ = w.Write([]byte("from outside host"))
	}))
	defer outside.Close()
	outsideURL := strings.Replace(outside.URL, "127.0.0.1", "localhost", 1)

	allowed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/away":
			http.Redirect(w, r, outsideURL+"/x.txt", http.StatusFound)
		case "/ftp":
			http.Redirect(w, r, "ftp://127.0.0.1/x.txt", http.StatusFound)
		case "/local":
			http.Redirect(w, r, "/x.txt", http.StatusFound)
		case "/x.txt":
			_, _ = w.Write([]byte("same host"))
		}
	}))
	defer allowed.Close()

	d := New(policy.NewValidator([]string{"127.0.0.1"}), Options{
		Limits: config.Limits{MaxFileSize: 1024, DownloadTimeout: 2 * time.Second, MaxConcurrent: 1, MaxBatchSize: 1},
	})
	dir := t.TempDir()

	_, err := d.Download(context.Background(), allowed.URL+"/away", dir, "file.txt")
	require.Error(t, err)
	assert.Equal(t, apperr.KindHostNotAllowed, apperr.KindOf(err))
	assert.Zero(t, outsideHits.Load())

	_, err = d.Download(context.Background(), allowed.URL+"/ftp", dir, "file.txt")
	assert.Equal(t, apperr.KindSchemeNotAllowed, apperr.KindOf(err))
	assert.Empty(t, dirEntries(t, dir))

	res, err := d.Download(context.Background(), allowed.URL+"/local", dir, "file.txt")
	require.NoError(t, err)
	assert.EqualValues(t, len("same host"), res.Bytes)
}

func TestDownload_CallerClientKeepsRedirectCheck(t *testing.T) {
	caller := &http.Client{}
	d := New(policy.NewValidator([]string{"example.com"}), Options{HTTPClient: caller})

	assert.Nil(t, caller.CheckRedirect, "caller client must not be mutated")
	require.NotNil(t, d.client.CheckRedirect)
	req := httptest.NewRequest(http.MethodGet, "http://evil.test/a", nil)
	assert.Equal(t, apperr.KindHostNotAllowed, apperr.KindOf(d.client.CheckRedirect(req, nil)))
}

func TestDownload_MissingDirectoryIsWriteFailure(t *testing.T) {
	srv := newStubServer(t)
	d := newTestDownloader(1024, 2*time.Second, true)

	_, err := d.Download(context.Background(), srv.URL+"/hello.txt", filepath.Join(t.TempDir(), "absent"), "a.txt")
	assert.Equal(t, apperr.KindWriteFailed, apperr.KindOf(err))
}

func TestValidateFilename(t *testing.T) {
	for _, ok := range []string{"a.txt", " report ", "photo.2024.jpg"} {
		assert.NoError(t, ValidateFilename(ok), ok)
	}
	for _, bad := range []string{"", "   ", ".", "..", "../x.txt", "dir/x.txt", `dir\x.txt`} {
		assert.Equal(t, apperr.KindMalformedRequest, apperr.KindOf(ValidateFilename(bad)), strconv.Quote(bad))
	}
}

func TestSizeText(t *testing.T) {
	assert.Equal(t, "0KB", SizeText(0))
	assert.Equal(t, "1KB", SizeText(1000))
	assert.Equal(t, "2KB", SizeText(2048))
	assert.Equal(t, "1.5MB", humanSize(1536*1024))
}
