package diskio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"
)

// ErrTransport is returned when the backing store answers with neither a
// satisfiable range nor a recognized end-of-image status.
var ErrTransport = errors.New("diskio: fetch transport error")

// RangeReader is the backing-store collaborator from spec.md §6: a
// positioned byte-range reader. status follows the HTTP convention: 200
// (whole resource), 206 (partial content), 416 (range not satisfiable), or
// 0 for "local response with no status" (e.g. reading past EOF of a local
// file is reported as 416, not 0 — 0 is reserved for an in-range local
// read that simply has no HTTP semantics to report).
type RangeReader interface {
	Fetch(ctx context.Context, url string, offset, length int64) (status int, body io.ReadCloser, err error)
}

// HTTPRangeReader implements RangeReader over net/http. No third-party
// HTTP client library appears anywhere in the retrieved example pack, so
// this is one of the module's few standard-library-only components.
type HTTPRangeReader struct {
	Client *http.Client
}

// Fetch issues a GET with a Range header covering [offset, offset+length).
func (h *HTTPRangeReader) Fetch(ctx context.Context, url string, offset, length int64) (int, io.ReadCloser, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, resp.Body, nil
}

// FileRangeReader implements RangeReader over a local disk image file,
// used when an image is mounted from a path rather than a URL — the same
// way every Mount/Attach function in the example pack loads disk images.
type FileRangeReader struct{}

// Fetch opens path and returns the requested byte range. A request that
// starts at or beyond end-of-file reports status 416, mirroring the
// backing store's end-of-image response; any other successful read
// reports status 0 ("local response with no status").
func (FileRangeReader) Fetch(ctx context.Context, path string, offset, length int64) (int, io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, nil, err
	}
	if offset >= info.Size() {
		f.Close()
		return 416, nil, nil
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return 0, nil, err
	}
	end := offset + length
	if end > info.Size() {
		end = info.Size()
	}
	return 0, &limitedFile{f: f, remaining: end - offset, ctx: ctx}, nil
}

// limitedFile checks ctx between reads so a cancelled FetchHandle actually
// stops a file-backed fetch already in flight, instead of running the
// installStream loop to completion regardless of Cancel().
type limitedFile struct {
	f         *os.File
	remaining int64
	ctx       context.Context
}

func (l *limitedFile) Read(p []byte) (int, error) {
	if err := l.ctx.Err(); err != nil {
		return 0, err
	}
	if l.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.f.Read(p)
	l.remaining -= int64(n)
	return n, err
}

func (l *limitedFile) Close() error { return l.f.Close() }

// FetchResult is delivered on a FetchHandle's completion channel.
type FetchResult struct {
	Block int64
	Err   error
}

// FetchHandle represents the single in-flight fetch a drive may have.
// Exactly one may exist per DriveMeta at a time, per spec.md §4.1.
type FetchHandle struct {
	group  *errgroup.Group
	cancel context.CancelFunc
	done   chan FetchResult
}

// Cancel aborts the in-flight fetch. The underlying goroutine observes
// ctx.Done() and stops copying further blocks; already-installed blocks
// are kept (reset preserves cache contents per spec.md §3).
func (h *FetchHandle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Poll returns the fetch's result if it has completed, non-blocking. This
// is what IoBus.Drain calls between CPU instructions.
func (h *FetchHandle) Poll() (FetchResult, bool) {
	select {
	case r := <-h.done:
		return r, true
	default:
		return FetchResult{}, false
	}
}

// Fetcher produces, on demand, the bytes of a named disk image at any
// 1 MiB-aligned offset, per spec.md §4.1.
type Fetcher struct {
	Reader RangeReader
}

// NewFetcher returns a Fetcher backed by reader.
func NewFetcher(reader RangeReader) *Fetcher {
	return &Fetcher{Reader: reader}
}

// Start begins fetching block for meta and returns immediately with a
// handle; the result arrives asynchronously on handle.Poll(). The
// fan-out/coordination between the fetch goroutine and its cancellation is
// built on errgroup.Group, following the same pattern IntuitionEngine's
// toolchain pulls in errgroup for: a small group of goroutines that share
// one cancellation context and one error.
func (f *Fetcher) Start(ctx context.Context, meta *DriveMeta, block int64) *FetchHandle {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan FetchResult, 1)
	h := &FetchHandle{group: g, cancel: cancel, done: done}

	g.Go(func() error {
		err := f.fetchBlock(gctx, meta, block)
		done <- FetchResult{Block: block, Err: err}
		return err
	})

	return h
}

func (f *Fetcher) fetchBlock(ctx context.Context, meta *DriveMeta, block int64) error {
	offset := block * BlockSize
	status, body, err := f.Reader.Fetch(ctx, meta.URL, offset, BlockSize)
	if err != nil {
		return err
	}
	if body != nil {
		defer body.Close()
	}

	switch {
	case status == 416:
		// End of image: install a zero block and succeed.
		meta.Cache.Install(block, nil)
		return nil
	case status == 200:
		// The response is the whole image: copy starting at block 0,
		// overriding the requested block index.
		return installStream(meta.Cache, 0, body)
	case status == 206 || status == 0:
		return installStream(meta.Cache, block, body)
	default:
		return ErrTransport
	}
}

// installStream copies body into meta's cache one BlockSize window at a
// time, starting at startBlock, per spec.md §4.1's block-install policy:
// absent blocks are allocated and filled; present blocks are skipped (the
// bytes are still drained from the stream so the cursor advances).
func installStream(cache *ImageCache, startBlock int64, body io.Reader) error {
	if body == nil {
		return nil
	}
	buf := make([]byte, BlockSize)
	block := startBlock
	for {
		n, err := io.ReadFull(body, buf)
		if n > 0 {
			cache.Install(block, buf[:n])
		}
		block++
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
