package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/repofetch/repofetch/internal/gitremote"
	"github.com/repofetch/repofetch/internal/safety"
)

const (
	// DefaultChunkSize splits rangeable archives into 8 MiB pieces.
	DefaultChunkSize int64 = 8 * 1024 * 1024

	// DefaultMaxParallelChunks bounds concurrent ranged GETs per batch.
	DefaultMaxParallelChunks = 4

	userAgent = "repofetch/1.0"
)

// TransferStats reports the timing of a completed archive transfer.
// Timing covers the transfer only; archive extraction is excluded.
type TransferStats struct {
	Bytes    int64
	Duration time.Duration
	Chunked  bool
}

// Client performs archive transfers over HTTP: ranged parallel chunks when
// the remote supports them, a single streamed GET otherwise. Retries are
// deliberately not handled here; that policy belongs to the orchestrator.
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	chunkSize   int64
	maxParallel int
}

// NewClient creates a transfer client. Zero chunkSize or maxParallel fall
// back to the defaults.
func NewClient(logger *slog.Logger, chunkSize int64, maxParallel int) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallelChunks
	}
	return &Client{
		httpClient: &http.Client{
			Transport: safety.NewTransport(),
			// No overall timeout: large archive bodies take as long as
			// they take. The per-operation context still bounds us.
		},
		logger:      logger,
		chunkSize:   chunkSize,
		maxParallel: maxParallel,
	}
}

// FetchArchive downloads url into destPath. When the remote advertises
// byte ranges and a known length the object is fetched as parallel chunks
// written at precomputed offsets; any ranged failure falls back
// transparently to a single streamed GET.
func (c *Client) FetchArchive(ctx context.Context, url string, headers map[string]string, destPath string) (*TransferStats, error) {
	file, err := os.OpenFile(destPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, NewError(ClassFileSystem, "opening destination file", err)
	}
	defer file.Close()

	start := time.Now()

	size, rangeable := c.probeRange(ctx, url, headers)
	if rangeable && size > c.chunkSize {
		bytes, err := c.fetchChunked(ctx, url, headers, file, size)
		if err == nil {
			return &TransferStats{Bytes: bytes, Duration: time.Since(start), Chunked: true}, nil
		}
		c.logger.Warn("chunked transfer failed, falling back to single stream",
			"url", gitremote.Sanitize(url), "error", err)
		if err := truncateToStart(file); err != nil {
			return nil, err
		}
	}

	bytes, err := c.streamGet(ctx, url, headers, file)
	if err != nil {
		return nil, err
	}
	return &TransferStats{Bytes: bytes, Duration: time.Since(start)}, nil
}

// probeRange asks the remote whether ranged requests are supported and
// what the object size is. A HEAD that errors or answers without both
// signals simply means no chunking.
func (c *Client) probeRange(ctx context.Context, url string, headers map[string]string) (int64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, false
	}
	c.setHeaders(req, headers)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, false
	}
	if !strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes") {
		return 0, false
	}
	if resp.ContentLength <= 0 {
		return 0, false
	}
	return resp.ContentLength, true
}

// chunk is one byte range of the object. The write position is derived
// from the precomputed offset, so out-of-order completion within a batch
// is safe.
type chunk struct {
	start int64
	end   int64 // inclusive
}

// fetchChunked downloads the object as fixed-size chunks in sequential
// batches of at most maxParallel concurrent requests. One batch fully
// completes before the next is issued, bounding peak connection count.
func (c *Client) fetchChunked(ctx context.Context, url string, headers map[string]string, file *os.File, size int64) (int64, error) {
	if err := file.Truncate(size); err != nil {
		return 0, NewError(ClassFileSystem, "pre-sizing destination file", err)
	}

	var chunks []chunk
	for off := int64(0); off < size; off += c.chunkSize {
		end := off + c.chunkSize - 1
		if end >= size {
			end = size - 1
		}
		chunks = append(chunks, chunk{start: off, end: end})
	}

	c.logger.Debug("starting chunked transfer",
		"url", gitremote.Sanitize(url),
		"size", size,
		"chunks", len(chunks),
		"batch_size", c.maxParallel,
	)

	for batchStart := 0; batchStart < len(chunks); batchStart += c.maxParallel {
		batchEnd := batchStart + c.maxParallel
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, ck := range chunks[batchStart:batchEnd] {
			ck := ck
			g.Go(func() error {
				return c.fetchChunk(gctx, url, headers, file, ck)
			})
		}
		if err := g.Wait(); err != nil {
			return 0, err
		}
	}

	return size, nil
}

// fetchChunk downloads one byte range and writes it at its offset.
func (c *Client) fetchChunk(ctx context.Context, url string, headers map[string]string, file *os.File, ck chunk) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating chunk request: %w", err)
	}
	c.setHeaders(req, headers)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", ck.start, ck.end))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chunk request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		// The server ignored the range; the caller falls back to a
		// single stream rather than assembling mismatched bytes.
		return fmt.Errorf("expected 206 for range %d-%d, got %d", ck.start, ck.end, resp.StatusCode)
	}

	want := ck.end - ck.start + 1
	n, err := io.Copy(io.NewOffsetWriter(file, ck.start), io.LimitReader(resp.Body, want))
	if err != nil {
		return fmt.Errorf("writing chunk at offset %d: %w", ck.start, err)
	}
	if n != want {
		return fmt.Errorf("short chunk at offset %d: got %d of %d bytes", ck.start, n, want)
	}
	return nil
}

// streamGet performs a single streamed download. A non-empty destination
// file is resumed with a Range request when the server cooperates.
func (c *Client) streamGet(ctx context.Context, url string, headers map[string]string, file *os.File) (int64, error) {
	offset := int64(0)
	if fi, err := file.Stat(); err == nil && fi.Size() > 0 {
		offset = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, NewError(ClassInputInvalid, "creating request", err)
	}
	c.setHeaders(req, headers)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, NewError(ClassNetwork, "http request failed", err).WithContext("url", gitremote.Sanitize(url))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := safety.ReadAllWithLimit(resp.Body, 4*1024)
		return 0, classifyHTTPError(&HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}, gitremote.Sanitize(url))
	}

	// A proxy that relays an error page answers 200 with HTML. That is
	// never an archive.
	if ct := resp.Header.Get("Content-Type"); strings.Contains(strings.ToLower(ct), "text/html") {
		return 0, Errorf(ClassDownloadFailed, "remote answered with an HTML page instead of an archive").
			WithContext("content_type", ct).
			WithContext("url", gitremote.Sanitize(url))
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return 0, NewError(ClassFileSystem, "seeking for resume", err)
		}
	default:
		// Server ignored the range (or none was sent): start fresh.
		if err := truncateToStart(file); err != nil {
			return 0, err
		}
		offset = 0
	}

	n, err := io.Copy(file, resp.Body)
	if err != nil {
		return 0, NewError(ClassNetwork, "reading response body", err).WithContext("url", gitremote.Sanitize(url))
	}
	return offset + n, nil
}

func (c *Client) setHeaders(req *http.Request, headers map[string]string) {
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

func truncateToStart(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return NewError(ClassFileSystem, "truncating destination file", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return NewError(ClassFileSystem, "rewinding destination file", err)
	}
	return nil
}
