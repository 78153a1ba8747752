package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// TransferEngine moves bytes from a resolved source to a destination path.
// All writing happens against a ".part" sibling; the final path only ever
// appears via an atomic rename after the transfer verified complete, so a
// reader never observes a truncated file there.
type TransferEngine struct {
	client  *http.Client
	timeout time.Duration // per attempt; 0 means no deadline
}

func NewTransferEngine(timeout time.Duration) *TransferEngine {
	return &TransferEngine{
		// No client-level timeout: transfers are long-lived and bounded by
		// the per-attempt context deadline instead.
		client:  &http.Client{},
		timeout: timeout,
	}
}

// PartSuffix marks in-flight downloads next to their final destination.
const PartSuffix = ".part"

// Fetch transfers src to dest, resuming from an existing partial file when
// the remote supports range requests. Returns the total bytes now on disk.
func (e *TransferEngine) Fetch(ctx context.Context, src Source, dest string) (int64, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	part := dest + PartSuffix

	var offset int64
	if st, err := os.Stat(part); err == nil {
		offset = st.Size()
	}

	written, err := e.fetchToPart(ctx, src, part, offset)
	if err != nil {
		return written, err
	}

	if src.ExpectedSize > 0 && written != src.ExpectedSize {
		// Corrupt partial state; drop it so the next attempt starts clean.
		os.Remove(part)
		return written, fmt.Errorf("%w: got %d bytes, expected %d", ErrSizeMismatch, written, src.ExpectedSize)
	}

	if err := os.Rename(part, dest); err != nil {
		return written, classifyTransferError(err)
	}
	return written, nil
}

// fetchToPart downloads into the partial file, trying a range continuation
// first when bytes are already on disk. Returns the total size of the
// partial file on success.
func (e *TransferEngine) fetchToPart(ctx context.Context, src Source, part string, offset int64) (int64, error) {
	if offset > 0 {
		n, err := e.fetchRange(ctx, src, part, offset)
		switch {
		case err == nil:
			return offset + n, nil
		case err == errRangeSatisfied:
			// The server says everything past offset is out of range: the
			// bytes on disk already are the complete body.
			return offset, nil
		case err == errRangeNotSupported:
			slog.Debug("Remote does not support range requests, restarting from zero", "url_host", hostOf(src.URL))
		default:
			return offset, err
		}
	}
	return e.fetchFull(ctx, src, part)
}

var (
	errRangeSatisfied    = fmt.Errorf("requested range not satisfiable")
	errRangeNotSupported = fmt.Errorf("range not supported")
)

func (e *TransferEngine) fetchRange(ctx context.Context, src Source, part string, offset int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", src.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	req.Header.Set("referer", "https://offstream.dk/")

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, classifyTransferError(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		file, err := os.OpenFile(part, os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, classifyTransferError(err)
		}
		defer file.Close()
		n, err := io.Copy(file, resp.Body)
		if err != nil {
			return n, classifyTransferError(err)
		}
		return n, nil
	case http.StatusRequestedRangeNotSatisfiable:
		return 0, errRangeSatisfied
	case http.StatusOK:
		return 0, errRangeNotSupported
	default:
		return 0, statusError(resp.StatusCode)
	}
}

func (e *TransferEngine) fetchFull(ctx context.Context, src Source, part string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", src.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("referer", "https://offstream.dk/")

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, classifyTransferError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, statusError(resp.StatusCode)
	}

	file, err := os.Create(part)
	if err != nil {
		return 0, classifyTransferError(err)
	}
	defer file.Close()

	n, err := io.Copy(file, resp.Body)
	if err != nil {
		// Keep the partial bytes; a later attempt resumes from here.
		return n, classifyTransferError(err)
	}
	if err := file.Sync(); err != nil {
		return n, classifyTransferError(err)
	}
	return n, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// statusError maps transfer HTTP status codes onto the failure taxonomy.
func statusError(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, code)
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrNotFound, code)
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}
