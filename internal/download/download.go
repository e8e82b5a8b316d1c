package download

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"filedownloader/internal/apperr"
	"filedownloader/internal/config"
	"filedownloader/internal/file"
	"filedownloader/internal/filetype"
	"filedownloader/internal/metrics"
	"filedownloader/internal/policy"
)

const chunkSize = 32 * 1024

// Result describes a file that was fully stored on disk.
type Result struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	FilePath    string `json:"filePath"`
	Bytes       int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
}

// Options configures a Downloader.
type Options struct {
	Limits    config.Limits
	Overwrite bool
	Sniff     bool
	UserAgent string
	// HTTPClient defaults to a client without its own timeout; the per-transfer
	// deadline is carried by the request context instead.
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

// Downloader performs single bounded transfers. It is safe for concurrent use;
// each call owns its own destination file.
type Downloader struct {
	policy    *policy.Validator
	client    *http.Client
	limits    config.Limits
	overwrite bool
	sniff     bool
	userAgent string
	metrics   *metrics.Metrics
}

const maxRedirects = 10

// New creates a Downloader. Every redirect hop is checked against the same
// policy as the initial URL.
func New(validator *policy.Validator, opts Options) *Downloader {
	d := &Downloader{
		policy:    validator,
		limits:    opts.Limits,
		overwrite: opts.Overwrite,
		sniff:     opts.Sniff,
		userAgent: opts.UserAgent,
		metrics:   opts.Metrics,
	}
	client := &http.Client{}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		client = &copied
	}
	client.CheckRedirect = d.checkRedirect
	d.client = client
	return d
}

func (d *Downloader) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return apperr.New(apperr.KindRequestFailed, "stopped after %d redirects", maxRedirects)
	}
	if _, err := d.policy.Validate(req.URL.String()); err != nil {
		return err
	}
	return nil
}

// ValidateFilename rejects names that are empty or would escape the target directory.
func ValidateFilename(name string) error {
	n := strings.TrimSpace(name)
	if n == "" {
		return apperr.New(apperr.KindMalformedRequest, "filename is required")
	}
	if n == "." || n == ".." || strings.ContainsAny(n, "/\\\x00") {
		return apperr.New(apperr.KindMalformedRequest, "filename %q must be a plain file name", n)
	}
	return nil
}

// Download fetches rawURL into dir under filename. When filename has no
// extension, the URL path extension is tried first, then the response
// Content-Type, then (optionally) the sniffed payload type.
//
// On any failure no partial file is left behind and the error is an *apperr.Error.
func (d *Downloader) Download(ctx context.Context, rawURL, dir, filename string) (*Result, error) {
	logger := zerolog.Ctx(ctx).With().Str("url", rawURL).Logger()

	u, err := d.policy.Validate(rawURL)
	if err == nil {
		err = ValidateFilename(filename)
	}
	if err != nil {
		d.metrics.Rejected(err)
		logger.Warn().Err(err).Msg("download rejected")
		return nil, err
	}

	name := filetype.ResolveName(strings.TrimSpace(filename), u.String())
	if !d.overwrite && filetype.HasExtension(name) && file.Exists(filepath.Join(dir, name)) {
		err := apperr.New(apperr.KindAlreadyExists, "file already exists: %s", name)
		d.metrics.Rejected(err)
		logger.Warn().Str("filename", name).Msg("target exists and overwrite is disabled")
		return nil, err
	}

	d.metrics.TransferStarted()
	start := time.Now()
	result, err := d.fetch(ctx, u, dir, name)
	var written int64
	if result != nil {
		written = result.Bytes
	}
	d.metrics.TransferFinished(time.Since(start), written, err)

	if err != nil {
		logger.Warn().Err(err).Str("kind", string(apperr.KindOf(err))).Dur("elapsed", time.Since(start)).Msg("download failed")
		return nil, err
	}
	logger.Info().Str("path", result.FilePath).Int64("bytes", result.Bytes).Dur("elapsed", time.Since(start)).Msg("download completed")
	return result, nil
}

func (d *Downloader) fetch(ctx context.Context, u *url.URL, dir, name string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.limits.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidURL, err, "build request")
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	httpResponse, err := d.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer func() { _ = httpResponse.Body.Close() }()

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		return nil, apperr.HTTPStatus(httpResponse.StatusCode, http.StatusText(httpResponse.StatusCode))
	}
	if httpResponse.ContentLength > d.limits.MaxFileSize {
		return nil, apperr.New(apperr.KindTooLarge, "file too large: %s declared, limit is %s",
			humanSize(httpResponse.ContentLength), humanSize(d.limits.MaxFileSize))
	}

	body := bufio.NewReaderSize(httpResponse.Body, filetype.SniffLen)
	contentType := httpResponse.Header.Get("Content-Type")
	if !filetype.HasExtension(name) {
		ext := filetype.ExtensionFromContentType(contentType)
		if ext == "" && d.sniff && filetype.IsGeneric(contentType) {
			// short bodies return fewer bytes plus an error; the stream loop reports real failures
			head, _ := body.Peek(filetype.SniffLen)
			ext = filetype.Sniff(head)
		}
		name += ext
	}

	target := filepath.Join(dir, name)
	if !d.overwrite && file.Exists(target) {
		return nil, apperr.New(apperr.KindAlreadyExists, "file already exists: %s", name)
	}

	tempFile, err := file.CreateTemp(dir, name)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindWriteFailed, err, "write failed")
	}
	written, err := d.stream(ctx, body, tempFile)
	if err != nil {
		file.Discard(tempFile)
		return nil, err
	}
	if err := file.Commit(tempFile, target, d.overwrite); err != nil {
		if errors.Is(err, file.ErrExists) {
			return nil, apperr.New(apperr.KindAlreadyExists, "file already exists: %s", name)
		}
		return nil, apperr.Wrap(apperr.KindWriteFailed, err, "write failed")
	}

	return &Result{
		URL:         u.String(),
		Filename:    name,
		FilePath:    target,
		Bytes:       written,
		ContentType: contentType,
	}, nil
}

// stream copies src to dst chunk by chunk, refusing to write any chunk that
// would take the file past the size limit.
func (d *Downloader) stream(ctx context.Context, src io.Reader, dst io.Writer) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if written+int64(n) > d.limits.MaxFileSize {
				return written, apperr.New(apperr.KindTooLarge, "file exceeds size limit of %s", humanSize(d.limits.MaxFileSize))
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, apperr.Wrap(apperr.KindWriteFailed, err, "write failed")
			}
			written += int64(n)
		}
		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, transportError(ctx, readErr)
		}
	}
}

func transportError(ctx context.Context, err error) error {
	// redirect policy rejections come back wrapped in *url.Error
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.Wrap(apperr.KindTimeout, err, "download timed out")
	}
	return apperr.Wrap(apperr.KindRequestFailed, err, "request failed")
}
