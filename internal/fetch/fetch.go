// Package fetch implements RangeFetcher (spec.md §4.2): HTTP size discovery
// with a chunked-encoding fallback, and ranged-body streaming into a part
// file with batched progress reporting and cooperative cancellation.
//
// Grounded on the teacher's internal/engine/probe.go (discover_length's
// HEAD + ranged-GET-probe fallback, the ExpiredLink status classification,
// optional SOCKS5/HTTP proxy dialing) and internal/downloader/concurrent.go's
// downloadTask (chunked streaming loop, batched atomic progress publishing,
// cancellation polling between chunks). Filename extraction reuses the
// teacher's own github.com/vfaronov/httpheader dependency
// (httpheader.ContentDisposition), already used by internal/downloader/
// downloader.go for the same purpose.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vfaronov/httpheader"
	"golang.org/x/net/proxy"
)

// Sentinel errors classified per spec.md §7. ExpiredLink/PausedByUser are
// also recognizable by substring match on Error(), preserving the external
// contract spec.md §4.4 documents ("ExpiredLink classification uses
// substring match on error string") even though callers should prefer
// errors.Is.
var (
	ErrCannotDetermineSize = errors.New("CannotDetermineSize")
	ErrExpiredLink         = errors.New("ExpiredLink")
	ErrPausedByUser        = errors.New("PausedByUser")
)

// IsExpiredLink reports whether err (or any error it wraps, or its string
// form) signals an expired/signed-link rejection.
func IsExpiredLink(err error) bool {
	return errors.Is(err, ErrExpiredLink) || strings.Contains(err.Error(), "ExpiredLink")
}

// IsPausedByUser reports whether err signals a cooperative cancellation.
func IsPausedByUser(err error) bool {
	return errors.Is(err, ErrPausedByUser) || strings.Contains(err.Error(), "PausedByUser")
}

const batchThreshold = 512 * 1024 // spec.md §4.2 suggested progress-publish batch size

// Options configures the underlying HTTP transport: proxy and TLS behavior,
// mirrored from the teacher's RuntimeConfig.ProxyURL/SkipTLSVerification.
type Options struct {
	ProxyURL            string
	SkipTLSVerification bool
}

// Fetcher speaks HTTP/1.1 ranged requests against one logical client
// configuration, reused across many tasks/segments.
type Fetcher struct {
	client *http.Client
}

// New builds a Fetcher with a tuned transport: a 30s idle-connection
// timeout per spec.md §5's recommendation, and optional proxy/TLS overrides.
func New(opts Options) (*Fetcher, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if opts.ProxyURL != "" {
		parsed, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("fetch: invalid proxy url: %w", err)
		}
		if strings.HasPrefix(parsed.Scheme, "socks5") {
			dialer, err := proxy.SOCKS5("tcp", parsed.Host, nil, proxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("fetch: socks5 dialer: %w", err)
			}
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		} else {
			transport.Proxy = http.ProxyURL(parsed)
		}
	}

	if opts.SkipTLSVerification {
		transport.TLSClientConfig = tlsConfigInsecure()
	}

	return &Fetcher{client: &http.Client{Transport: transport}}, nil
}

// DiscoverLength implements spec.md §4.2's discover_length.
func (f *Fetcher) DiscoverLength(ctx context.Context, rawURL, userAgent string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}
	setUA(req, userAgent)

	resp, err := f.client.Do(req)
	if err == nil {
		defer drainAndClose(resp)
		if status := resp.StatusCode; status == http.StatusForbidden || status == http.StatusNotFound || status == http.StatusGone {
			return 0, fmt.Errorf("%w: HEAD returned %d", ErrExpiredLink, status)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if n := parseContentLength(resp.Header.Get("Content-Length")); n > 0 {
				return n, nil
			}
		}
	}

	// Step 2: ranged GET probe.
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	setUA(req, userAgent)
	req.Header.Set("Range", "bytes=0-0")

	resp, err = f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCannotDetermineSize, err)
	}
	defer drainAndClose(resp)

	if status := resp.StatusCode; status == http.StatusForbidden || status == http.StatusNotFound || status == http.StatusGone {
		return 0, fmt.Errorf("%w: ranged GET returned %d", ErrExpiredLink, status)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: ranged GET returned %d", ErrCannotDetermineSize, resp.StatusCode)
	}

	if n := parseContentRangeTotal(resp.Header.Get("Content-Range")); n > 0 {
		return n, nil
	}
	return 0, ErrCannotDetermineSize
}

// Filename returns a Content-Disposition-derived filename hint, or "" if
// none is present.
func Filename(resp *http.Response) string {
	if _, name, err := httpheader.ContentDisposition(resp.Header); err == nil {
		return name
	}
	return ""
}

// FetchRange implements spec.md §4.2's fetch_range: downloads [start,end]
// into destPath (truncating on create), publishing batched progress and
// polling cancel between chunks.
func (f *Fetcher) FetchRange(ctx context.Context, rawURL, userAgent string, start, end int64, destPath string, progress *int64, cancel *atomic.Bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	setUA(req, userAgent)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	if status := resp.StatusCode; status == http.StatusForbidden || status == http.StatusNotFound || status == http.StatusGone {
		return fmt.Errorf("%w: GET returned %d", ErrExpiredLink, status)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	buf := make([]byte, 64*1024)
	var batched int64
	for {
		if cancel != nil && cancel.Load() {
			return ErrPausedByUser
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			batched += int64(n)
			if batched >= batchThreshold {
				if progress != nil {
					atomic.AddInt64(progress, batched)
				}
				batched = 0
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	if progress != nil && batched > 0 {
		atomic.AddInt64(progress, batched)
	}
	return out.Sync()
}

func setUA(req *http.Request, userAgent string) {
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
}

func parseContentLength(raw string) int64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseContentRangeTotal parses the "bytes 0-0/1234" form, mirroring the
// teacher's own probe.go string handling rather than risking an unfamiliar
// third-party parser's exact field semantics for this one format.
func parseContentRangeTotal(raw string) int64 {
	idx := strings.LastIndex(raw, "/")
	if idx == -1 {
		return 0
	}
	sizeStr := raw[idx+1:]
	if sizeStr == "*" {
		return 0
	}
	n, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
